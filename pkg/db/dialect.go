package db

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/billbook/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// Dialect opens the configured driver. All dialects store timestamps in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case DialectPostgres:
		return postgres.Open(postgresDSN(cfg)), nil
	case DialectMySQL:
		return mysql.Open(mysqlDSN(cfg)), nil
	case DialectSQLite:
		return sqlite.Open(fmt.Sprintf("file:%s?_busy_timeout=5000&_loc=auto", cfg.DBPath)), nil
	default:
		return nil, fmt.Errorf("db: unsupported type %q", cfg.DBType)
	}
}

func postgresDSN(cfg config.Config) string {
	q := url.Values{}
	q.Set("sslmode", orDefault(cfg.DBSSLMode, "disable"))
	q.Set("TimeZone", "UTC")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     net.JoinHostPort(cfg.DBHost, orDefault(cfg.DBPort, "5432")),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func mysqlDSN(cfg config.Config) string {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, orDefault(cfg.DBPort, "3306"))
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Name reports the dialect behind a connection ("postgres", "mysql", "sqlite").
func Name(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	return strings.ToLower(db.Dialector.Name())
}

func IsSQLite(db *gorm.DB) bool {
	return Name(db) == DialectSQLite
}

func IsMySQL(db *gorm.DB) bool {
	return Name(db) == DialectMySQL
}
