package transfer

import (
	"github.com/iudanet/confsync/internal/crypto"
)

// chunk представляет один фрагмент payload фиксированного размера.
// data хранит несжатые байты; сжатие применяется непосредственно
// перед отправкой.
type chunk struct {
	hash  string
	data  []byte
	index int
}

// splitChunks режет payload на фрагменты размера chunkSize,
// вычисляя SHA-256 каждого фрагмента. Последний фрагмент может быть короче.
func splitChunks(payload []byte, chunkSize int) []chunk {
	if len(payload) == 0 {
		return nil
	}

	chunks := make([]chunk, 0, (len(payload)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		data := payload[offset:end]
		chunks = append(chunks, chunk{
			index: len(chunks),
			data:  data,
			hash:  crypto.HashPayload(data),
		})
	}
	return chunks
}

// assembleChunks собирает payload из фрагментов, упорядоченных по индексу.
// Порядок завершения передачи фрагментов не гарантирован, но результат
// всегда упорядочен по chunk index.
func assembleChunks(chunks map[int][]byte, totalChunks int) []byte {
	var size int
	for _, data := range chunks {
		size += len(data)
	}

	payload := make([]byte, 0, size)
	for index := 0; index < totalChunks; index++ {
		payload = append(payload, chunks[index]...)
	}
	return payload
}
