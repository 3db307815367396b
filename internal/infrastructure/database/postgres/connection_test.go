package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/internal/config"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "gatewarden",
		Password: "p@ss/word",
		DBName:   "gatewarden",
		SSLMode:  "require",
	})

	assert.Contains(t, dsn, "postgres://gatewarden:")
	assert.Contains(t, dsn, "@db.internal:5432/gatewarden")
	assert.Contains(t, dsn, "sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word", "password must be URL-escaped")
}

func TestBuildDSNDefaultsSSLModeOff(t *testing.T) {
	dsn := BuildDSN(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", DBName: "d",
	})
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Equal(t, "1.2.3.4", nullable("1.2.3.4"))
}
