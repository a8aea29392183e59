// Package config загружает конфигурацию confsync из YAML файла.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EncryptionConfig параметры шифрования payload.
type EncryptionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Algorithm string `yaml:"algorithm"`
	KDF       string `yaml:"kdf"`
}

// TransferConfig параметры фрагментированной передачи.
type TransferConfig struct {
	ChunkSize        int           `yaml:"chunkSize"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	Compression bool `yaml:"compression"`
	// CompressionLevel принимается для совместимости конфигов, но не
	// используется: snappy не настраивается по уровню сжатия.
	CompressionLevel int           `yaml:"compressionLevel"`
	RetryAttempts    int           `yaml:"retryAttempts"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	Timeout          time.Duration `yaml:"timeout"`
	BandwidthLimit   int64         `yaml:"bandwidthLimit"`
	VerifyIntegrity  bool          `yaml:"verifyIntegrity"`
}

// QueueConfig параметры офлайн-очереди.
type QueueConfig struct {
	Persistence bool   `yaml:"persistence"`
	Path        string `yaml:"path"`
	MaxRetries  int    `yaml:"maxRetries"`
}

// Config корневая конфигурация confsync.
type Config struct {
	NodeID           string           `yaml:"nodeId"`
	Encryption       EncryptionConfig `yaml:"encryption"`
	Transfer         TransferConfig   `yaml:"transfer"`
	Queue            QueueConfig      `yaml:"queue"`
	AutoSyncInterval time.Duration    `yaml:"autoSyncInterval"` // <=0 выключает
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Encryption: EncryptionConfig{
			Algorithm: "aes-256-gcm",
			KDF:       "argon2id",
		},
		Transfer: TransferConfig{
			ChunkSize:       256 * 1024,
			MaxConcurrent:   3,
			RetryAttempts:   3,
			RetryDelay:      500 * time.Millisecond,
			Timeout:         30 * time.Second,
			VerifyIntegrity: true,
		},
		Queue: QueueConfig{
			MaxRetries: 3,
		},
	}
}

// Load читает конфигурацию из YAML файла поверх значений по умолчанию.
// Отсутствующий путь - не ошибка: возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	if c.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("transfer.chunkSize must be positive, got %d", c.Transfer.ChunkSize)
	}
	if c.Transfer.MaxConcurrent <= 0 {
		return fmt.Errorf("transfer.maxConcurrent must be positive, got %d", c.Transfer.MaxConcurrent)
	}
	if c.Transfer.RetryAttempts < 0 {
		return fmt.Errorf("transfer.retryAttempts cannot be negative, got %d", c.Transfer.RetryAttempts)
	}
	if c.Transfer.BandwidthLimit < 0 {
		return fmt.Errorf("transfer.bandwidthLimit cannot be negative, got %d", c.Transfer.BandwidthLimit)
	}
	if c.Encryption.Enabled {
		if c.Encryption.Algorithm != "aes-256-gcm" {
			return fmt.Errorf("unsupported encryption algorithm: %s", c.Encryption.Algorithm)
		}
		if c.Encryption.KDF != "argon2id" {
			return fmt.Errorf("unsupported kdf: %s", c.Encryption.KDF)
		}
	}
	if c.Queue.Persistence && c.Queue.Path == "" {
		return fmt.Errorf("queue.path is required when queue.persistence is enabled")
	}
	return nil
}
