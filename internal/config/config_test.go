package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/chat")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Store.ConnectAttempts)
	assert.Equal(t, "chat.events", cfg.AMQPExchange)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.DebugRoutes)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("AUTH_GRPC_ADDR", "auth:8084")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without dsn", env: map[string]string{"AUTH_JWT_SECRET": "s"}},
		{name: "no identity collaborator", env: map[string]string{"STORE_DRIVER": "memory"}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "sqlite", "AUTH_JWT_SECRET": "s"}},
		{name: "bad bool", env: map[string]string{"STORE_DRIVER": "memory", "AUTH_JWT_SECRET": "s", "DEBUG_ROUTES": "maybe"}},
		{name: "bad int", env: map[string]string{"STORE_DRIVER": "memory", "AUTH_JWT_SECRET": "s", "REDIS_DB": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
