package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, 24*time.Hour, cfg.Sessions.InactivityTTL)
	assert.Equal(t, "@hourly", cfg.Sessions.ReaperSpec)
	assert.Equal(t, 10, cfg.Sessions.MaxParticipantsDefault)
	assert.Equal(t, int64(512*1024), cfg.WebSocket.ReadLimit)
}

func TestLoad(t *testing.T) {
	t.Run("RequiresJWTSecret", func(t *testing.T) {
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt_secret")
	})

	t.Run("EnvOnly", func(t *testing.T) {
		t.Setenv("COLLAB_JWT_SECRET", "env-secret")
		t.Setenv("COLLAB_SERVER_PORT", "9999")
		t.Setenv("COLLAB_SESSION_TTL", "48h")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, 48*time.Hour, cfg.Sessions.InactivityTTL)
	})

	t.Run("FileThenEnvOverride", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7070"
auth:
  jwt_secret: file-secret
sessions:
  inactivity_ttl: 12h
  max_participants_default: 5
redis:
  host: redis.internal
`), 0o600))
		t.Setenv("COLLAB_SERVER_PORT", "7071")

		cfg, err := Load(path)
		require.NoError(t, err)
		// Env wins over file, file wins over defaults
		assert.Equal(t, "7071", cfg.Server.Port)
		assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
		assert.Equal(t, 12*time.Hour, cfg.Sessions.InactivityTTL)
		assert.Equal(t, 5, cfg.Sessions.MaxParticipantsDefault)
		assert.Equal(t, "redis.internal:6379", cfg.RedisAddr())
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "s"

	cfg.Sessions.InactivityTTL = 0
	assert.Error(t, cfg.Validate())

	cfg.Sessions.InactivityTTL = time.Hour
	cfg.Sessions.MaxParticipantsDefault = 0
	assert.Error(t, cfg.Validate())

	cfg.Sessions.MaxParticipantsDefault = 1
	assert.NoError(t, cfg.Validate())
}
