package domain

import "time"

// HistoryRecord is one append-only entry describing a finished fetch
type HistoryRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationID string    `gorm:"index" json:"correlation_id"`
	URL           string    `gorm:"not null" json:"url"`
	Title         string    `json:"title,omitempty"`
	Format        string    `json:"format"`
	Success       bool      `gorm:"index" json:"success"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
	Attempts      int       `json:"attempts"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the table name
func (HistoryRecord) TableName() string {
	return "fetch_history"
}

// HistorySink records finished fetches. Failures are the sink's problem, never the caller's.
type HistorySink interface {
	Record(record *HistoryRecord)
}

// HistoryRepository is the queryable side of the history store
type HistoryRepository interface {
	HistorySink

	// Recent returns up to limit records, newest first
	Recent(limit int) ([]*HistoryRecord, error)

	// Stats summarises the store
	Stats() (*HistoryStats, error)

	Close() error
}

// HistoryStats represents history statistics
type HistoryStats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
