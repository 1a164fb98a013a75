package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

const historyQueueSize = 256

// historyOp is either a record to write or a flush marker
type historyOp struct {
	record *domain.HistoryRecord
	done   chan struct{}
}

// SQLiteHistoryRepository implements domain.HistoryRepository using SQLite.
// Records are written by a background goroutine; Record never waits on disk.
type SQLiteHistoryRepository struct {
	db     *gorm.DB
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan historyOp
	drained chan struct{}
}

// NewSQLiteHistoryRepository opens (and migrates) the history database
func NewSQLiteHistoryRepository(dbPath string, logger *zap.Logger) (*SQLiteHistoryRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gl := zapgorm2.New(logger.Named("gorm"))
	gl.LogLevel = gormlogger.Warn
	gl.IgnoreRecordNotFoundError = true

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	repo := &SQLiteHistoryRepository{
		db:      db,
		logger:  logger,
		queue:   make(chan historyOp, historyQueueSize),
		drained: make(chan struct{}),
	}
	go repo.writeLoop()
	return repo, nil
}

// Record queues a record for writing. Errors are logged, never returned, and
// a full queue drops the record.
func (r *SQLiteHistoryRepository) Record(record *domain.HistoryRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("History closed, record dropped", zap.String("id", record.CorrelationID))
		return
	}

	select {
	case r.queue <- historyOp{record: record}:
	default:
		r.logger.Warn("History queue full, record dropped", zap.String("id", record.CorrelationID))
	}
}

// Flush blocks until every record queued before the call is written
func (r *SQLiteHistoryRepository) Flush() {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	done := make(chan struct{})
	r.queue <- historyOp{done: done}
	r.mu.RUnlock()
	<-done
}

func (r *SQLiteHistoryRepository) writeLoop() {
	defer close(r.drained)
	for op := range r.queue {
		if op.record != nil {
			r.write(op.record)
		}
		if op.done != nil {
			close(op.done)
		}
	}
}

func (r *SQLiteHistoryRepository) write(record *domain.HistoryRecord) {
	if err := r.db.Create(record).Error; err != nil {
		r.logger.Error("Failed to record fetch history",
			zap.String("id", record.CorrelationID),
			zap.Error(err))
	}
}

// Recent returns up to limit records, newest first
func (r *SQLiteHistoryRepository) Recent(limit int) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []*domain.HistoryRecord
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Stats summarises the store
func (r *SQLiteHistoryRepository) Stats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{}
	if err := r.db.Model(&domain.HistoryRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	if err := r.db.Model(&domain.HistoryRecord{}).Where("success = ?", true).Count(&stats.Succeeded).Error; err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	stats.Failed = stats.Total - stats.Succeeded
	return stats, nil
}

// Close writes any queued records and closes the database connection
func (r *SQLiteHistoryRepository) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.drained

	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
