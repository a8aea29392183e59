package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id для выведения ключа шифрования из пароля
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// SaltSize - размер соли в байтах
	SaltSize = 32
)

// GenerateSalt генерирует криптографически случайную соль
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey выводит 32-байтный ключ шифрования из пароля и соли
// с использованием Argon2id. Одинаковые пароль и соль на разных узлах
// дают одинаковый ключ, что позволяет расшифровывать чужие envelope.
func DeriveKey(password, salt []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt cannot be empty")
	}

	key := argon2.IDKey(password, salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize)
	return key, nil
}

// Zeroize затирает содержимое буфера. Используется при уничтожении
// ключевого материала.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
