package migration

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

var errNoDatabase = errors.New("migration: database handle is required")

// Run brings the schema up to date. Postgres applies the versioned files
// under sql/; sqlite and mysql are local targets and use AutoMigrate.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errNoDatabase
	}
	if pkgdb.Name(conn) != pkgdb.DialectPostgres {
		return conn.AutoMigrate(Models()...)
	}

	m, err := newMigrator(conn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: apply: %w", err)
	}
	return nil
}

// Version reports the applied schema version. Non-postgres dialects have no
// version table and report 0.
func Version(conn *gorm.DB) (uint, bool, error) {
	if conn == nil {
		return 0, false, errNoDatabase
	}
	if pkgdb.Name(conn) != pkgdb.DialectPostgres {
		return 0, false, nil
	}
	m, err := newMigrator(conn)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrator wraps the pool shared with gorm. The returned migrator must not
// be closed since that closes the pool.
func newMigrator(conn *gorm.DB) (*migrate.Migrate, error) {
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return nil, fmt.Errorf("migration: open source: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration: open driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	return m, nil
}
