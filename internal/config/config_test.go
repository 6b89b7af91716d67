package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress)
	assert.Equal(t, 168*time.Hour, cfg.BidValidity)
	assert.Equal(t, 720*time.Hour, cfg.LocationTTL)
	assert.True(t, cfg.Postgres.AutoMigrate)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Nats.URL)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  PostgresConfig
		want string
	}{
		{
			name: "explicit url wins",
			cfg:  PostgresConfig{URL: "postgres://u:p@db:5432/x", Host: "ignored"},
			want: "postgres://u:p@db:5432/x",
		},
		{
			name: "built from parts",
			cfg:  PostgresConfig{User: "u", Password: "p", Host: "h", Port: "1", Name: "n"},
			want: "postgres://u:p@h:1/n?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
