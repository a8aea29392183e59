package models

// TransferStatus представляет состояние передачи.
// Конечный автомат: pending -> active -> {completed | failed | paused};
// paused/failed -> active через явный resume.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusActive    TransferStatus = "active"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusPaused    TransferStatus = "paused"
)

// TransferDirection направление передачи.
type TransferDirection string

const (
	TransferDirectionUpload   TransferDirection = "upload"
	TransferDirectionDownload TransferDirection = "download"
)

// TransferState представляет возобновляемое состояние одной передачи.
// Владеет им исключительно state manager transfer engine;
// sync engine читает его только через возвращаемую копию.
type TransferState struct {
	ID               string            `json:"id"`
	ItemID           string            `json:"item_id"`
	Direction        TransferDirection `json:"direction"`
	Status           TransferStatus    `json:"status"`
	ContentHash      string            `json:"content_hash"`
	Error            string            `json:"error,omitempty"`
	CompletedChunks  []int             `json:"completed_chunks"`
	TotalSize        int64             `json:"total_size"`
	TransferredBytes int64             `json:"transferred_bytes"`
	TotalChunks      int               `json:"total_chunks"`
}

// CanResume сообщает, допустимо ли возобновление передачи.
func (t *TransferState) CanResume() bool {
	return t.Status == TransferStatusPaused || t.Status == TransferStatusFailed
}

// MissingChunks возвращает индексы еще не переданных chunks
// (полный диапазон минус completedChunks) в порядке возрастания.
func (t *TransferState) MissingChunks() []int {
	done := make(map[int]bool, len(t.CompletedChunks))
	for _, idx := range t.CompletedChunks {
		done[idx] = true
	}

	missing := make([]int, 0, t.TotalChunks-len(done))
	for idx := 0; idx < t.TotalChunks; idx++ {
		if !done[idx] {
			missing = append(missing, idx)
		}
	}
	return missing
}

// Clone создает копию состояния передачи.
func (t *TransferState) Clone() *TransferState {
	clone := *t
	clone.CompletedChunks = append([]int(nil), t.CompletedChunks...)
	return &clone
}
