package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashPayload вычисляет SHA-256 хеш payload в hex.
// Используется transfer engine для целостности всего payload
// и отдельных chunks.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// VerifyPayload проверяет, соответствует ли payload ожидаемому хешу.
func VerifyPayload(payload []byte, expectedHash string) error {
	if expectedHash == "" {
		return fmt.Errorf("expected hash cannot be empty")
	}

	computed := HashPayload(payload)
	if computed != expectedHash {
		return fmt.Errorf("payload hash mismatch: expected %s, got %s", expectedHash, computed)
	}
	return nil
}
