package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
)

// Config параметры encryption capability.
type Config struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"` // поддерживается только "aes-256-gcm"
	KDF       string `json:"kdf" yaml:"kdf"`             // поддерживается только "argon2id"
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		Algorithm: "aes-256-gcm",
		KDF:       "argon2id",
	}
}

// Envelope представляет аутентифицированный зашифрованный контейнер.
// Соль KDF путешествует вместе с данными, чтобы любой узел, знающий
// пароль, мог вывести ключ и расшифровать envelope.
type Envelope struct {
	Algorithm string `json:"algorithm"`
	KDF       string `json:"kdf"`
	Salt      string `json:"salt"` // base64
	Data      string `json:"data"` // base64: nonce + ciphertext + auth_tag
}

// Marshal сериализует envelope в JSON для передачи.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope восстанавливает envelope из JSON.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Service реализует encryption capability: превращает plaintext в
// аутентифицированный envelope и обратно по ключу, выведенному из пароля.
type Service struct {
	cfg      Config
	password []byte
	salt     []byte
	key      []byte
	mu       sync.RWMutex
}

// NewService создает неинициализированный сервис шифрования.
func NewService(cfg Config) *Service {
	if cfg.Algorithm == "" {
		cfg = DefaultConfig()
	}
	return &Service{cfg: cfg}
}

// Initialize выводит ключ шифрования из пароля.
// Пароль удерживается в памяти до Destroy: он нужен, чтобы выводить
// ключи для envelope с чужой солью.
func (s *Service) Initialize(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	key, err := DeriveKey([]byte(password), salt)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.password = []byte(password)
	s.salt = salt
	s.key = key
	return nil
}

// IsReady сообщает, готов ли сервис шифровать и расшифровывать.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.key) == KeySize
}

// Encrypt шифрует plaintext и возвращает envelope.
func (s *Service) Encrypt(plaintext []byte) (*Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.key) != KeySize {
		return nil, fmt.Errorf("encryption service is not initialized")
	}

	encrypted, err := Encrypt(plaintext, s.key)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Algorithm: s.cfg.Algorithm,
		KDF:       s.cfg.KDF,
		Salt:      base64.StdEncoding.EncodeToString(s.salt),
		Data:      base64.StdEncoding.EncodeToString(encrypted),
	}, nil
}

// Decrypt расшифровывает envelope. Если envelope создан с другой солью
// (другим узлом), ключ выводится заново из удержанного пароля.
func (s *Service) Decrypt(env *Envelope) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.key) != KeySize {
		return nil, fmt.Errorf("encryption service is not initialized")
	}
	if env.Algorithm != s.cfg.Algorithm {
		return nil, fmt.Errorf("unsupported envelope algorithm: %s", env.Algorithm)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope data: %w", err)
	}

	key := s.key
	if string(salt) != string(s.salt) {
		key, err = DeriveKey(s.password, salt)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key for foreign salt: %w", err)
		}
	}

	return Decrypt(encrypted, key)
}

// UpdateConfig обновляет параметры сервиса. Уже выведенный ключ
// сохраняется: смена algorithm/kdf действует на новые envelope.
func (s *Service) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
}

// Destroy затирает ключевой материал. После вызова сервис нужно
// инициализировать заново.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	Zeroize(s.key)
	Zeroize(s.password)
	Zeroize(s.salt)
	s.key = nil
	s.password = nil
	s.salt = nil
}
