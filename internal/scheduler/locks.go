package scheduler

import (
	"context"
	"hash/fnv"

	pkgdb "github.com/smallbiznis/billbook/pkg/db"
)

// withJobLock runs fn in a transaction holding a postgres advisory lock
// named after the job, so concurrent instances do not sweep the same rows.
// Other dialects run single-instance and skip the lock.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(ctx context.Context) error) (bool, error) {
	acquired := true
	err := pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		if pkgdb.Name(s.db) == pkgdb.DialectPostgres {
			var ok bool
			if err := pkgdb.Conn(ctx, s.db).Raw(`SELECT pg_try_advisory_xact_lock(?)`, jobLockKey(job)).Scan(&ok).Error; err != nil {
				return err
			}
			if !ok {
				acquired = false
				return nil
			}
		}
		return fn(ctx)
	})
	return acquired, err
}

func jobLockKey(job string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("billbook.scheduler." + job))
	return int64(h.Sum64())
}
