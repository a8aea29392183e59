package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 256*1024, cfg.Transfer.ChunkSize)
	assert.Equal(t, 3, cfg.Transfer.MaxConcurrent)
	assert.True(t, cfg.Transfer.VerifyIntegrity)
	assert.False(t, cfg.Encryption.Enabled)
	assert.Equal(t, "aes-256-gcm", cfg.Encryption.Algorithm)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.LessOrEqual(t, cfg.AutoSyncInterval, time.Duration(0))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 256*1024, cfg.Transfer.ChunkSize)
}

func TestLoad_File(t *testing.T) {
	raw := `
nodeId: workstation-1
encryption:
  enabled: true
  algorithm: aes-256-gcm
  kdf: argon2id
transfer:
  chunkSize: 65536
  maxConcurrent: 5
  compression: true
  retryAttempts: 4
  retryDelay: 1s
  timeout: 10s
  verifyIntegrity: true
queue:
  persistence: true
  path: /tmp/confsync-queue.db
  maxRetries: 5
autoSyncInterval: 5m
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "workstation-1", cfg.NodeID)
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, 65536, cfg.Transfer.ChunkSize)
	assert.Equal(t, 5, cfg.Transfer.MaxConcurrent)
	assert.True(t, cfg.Transfer.Compression)
	assert.Equal(t, time.Second, cfg.Transfer.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.Transfer.Timeout)
	assert.True(t, cfg.Queue.Persistence)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.AutoSyncInterval)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transfer: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Transfer.ChunkSize = 0 },
			wantErr: "chunkSize",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Transfer.RetryAttempts = -1 },
			wantErr: "retryAttempts",
		},
		{
			name: "unknown algorithm",
			mutate: func(c *Config) {
				c.Encryption.Enabled = true
				c.Encryption.Algorithm = "rot13"
			},
			wantErr: "algorithm",
		},
		{
			name: "persistence without path",
			mutate: func(c *Config) {
				c.Queue.Persistence = true
			},
			wantErr: "queue.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
