package db

import (
	"net/url"
	"testing"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	dsn := postgresDSN(config.Config{
		DBHost: "db.internal", DBUser: "billbook", DBPassword: "p@ss/word", DBName: "billbook",
	})
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:5432", u.Host)
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pass)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "UTC", u.Query().Get("TimeZone"))
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(config.Config{DBHost: "127.0.0.1", DBPort: "3307", DBUser: "root", DBPassword: "pw", DBName: "bb"})
	assert.Contains(t, dsn, "root:pw@tcp(127.0.0.1:3307)/bb?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}
