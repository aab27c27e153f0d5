package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Queue.Driver)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxFileSize)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadReadsYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  base_path: "v1/"
  shutdown_timeout: 5s
storage:
  type: MINIO
  retention: 24h
minio:
  endpoint: localhost:9000
  bucket_name: docs
store:
  driver: redis
queue:
  driver: asynq
  concurrency: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "minio", cfg.Storage.Type)
	assert.Equal(t, 24*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, "docs", cfg.Minio.BucketName)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "queue:\n  concurrency: 2\n")
	t.Setenv("PDFTASK_QUEUE_CONCURRENCY", "7")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Queue.Concurrency)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"concurrency":    "queue:\n  concurrency: 0\n",
		"storage type":   "storage:\n  type: ftp\n",
		"store driver":   "store:\n  driver: sqlite\n",
		"asynq memory":   "queue:\n  driver: asynq\n",
		"s3 bucket":      "storage:\n  type: s3\n",
		"max files":      "upload:\n  max_files: -1\n",
		"bad env number": "",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if name == "bad env number" {
				t.Setenv("REDIS_DB", "zero")
			}
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
