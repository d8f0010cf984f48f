package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
)

const (
	keySyncBatchOrg    = "sync:batch:org:%s"
	keySyncMutationKey = "sync:mutation:lock:%s:%s"

	defaultKeyLockTTL = 30 * time.Second
)

// SyncLimiter throttles batch uploads per tenant and serializes concurrent
// executions of the same idempotency key across devices. A nil limiter allows
// everything.
type SyncLimiter struct {
	bucket *batchBucket
	lock   *mutationLock
}

func NewSyncLimiter(cfg config.Config, client *redis.Client) (*SyncLimiter, error) {
	if !cfg.RateLimit.Enabled && !cfg.Sync.KeyLockEnabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit and key locks require REDIS_ADDR")
	}

	l := &SyncLimiter{}
	if cfg.RateLimit.Enabled {
		bucket, err := newBatchBucket(client, cfg.RateLimit.SyncBatchRate, cfg.RateLimit.SyncBatchBurst)
		if err != nil {
			return nil, err
		}
		l.bucket = bucket
	}
	if cfg.Sync.KeyLockEnabled {
		lock, err := newMutationLock(client, cfg.Sync.KeyLockTTL)
		if err != nil {
			return nil, err
		}
		l.lock = lock
	}
	return l, nil
}

func (l *SyncLimiter) RateEnabled() bool {
	return l != nil && l.bucket != nil
}

func (l *SyncLimiter) LockEnabled() bool {
	return l != nil && l.lock != nil
}

// AllowBatch takes one token from the tenant's batch bucket.
func (l *SyncLimiter) AllowBatch(ctx context.Context, orgID string) (*Decision, error) {
	if !l.RateEnabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, fmt.Sprintf(keySyncBatchOrg, strings.TrimSpace(orgID)))
}

// TryLockMutation claims an idempotency key. ok is false while another
// request holds it.
func (l *SyncLimiter) TryLockMutation(ctx context.Context, orgID, key string) (string, bool, error) {
	if !l.LockEnabled() {
		return "", true, nil
	}
	return l.lock.acquire(ctx, orgID, key)
}

func (l *SyncLimiter) ReleaseMutation(ctx context.Context, orgID, key, token string) error {
	if !l.LockEnabled() {
		return nil
	}
	return l.lock.release(ctx, orgID, key, token)
}
