package infrastructure

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"go.uber.org/zap"
)

func setupTestHistory(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	return openTestHistory(t, filepath.Join(t.TempDir(), "data", "history.db"))
}

func openTestHistory(t *testing.T, path string) *SQLiteHistoryRepository {
	t.Helper()
	repo, err := NewSQLiteHistoryRepository(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHistory_RecentNewestFirst(t *testing.T) {
	repo := setupTestHistory(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"one", "two", "three"} {
		repo.Record(&domain.HistoryRecord{
			CorrelationID: id,
			URL:           "https://example.com/" + id,
			Format:        "mp4",
			Success:       true,
			Attempts:      1,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}

	repo.Flush()

	records, err := repo.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "three", records[0].CorrelationID)
	assert.Equal(t, "two", records[1].CorrelationID)
}

func TestHistory_Stats(t *testing.T) {
	repo := setupTestHistory(t)

	repo.Record(&domain.HistoryRecord{CorrelationID: "ok", URL: "u", Success: true, Attempts: 1})
	repo.Record(&domain.HistoryRecord{
		CorrelationID: "bad",
		URL:           "u",
		ErrorKind:     domain.KindTimeout,
		Error:         "timed out",
		Attempts:      3,
	})

	repo.Flush()

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)

	records, err := repo.Recent(10)
	require.NoError(t, err)
	var failed *domain.HistoryRecord
	for _, r := range records {
		if r.CorrelationID == "bad" {
			failed = r
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, domain.KindTimeout, failed.ErrorKind)
	assert.Equal(t, 3, failed.Attempts)
}

func TestHistory_CloseWritesQueuedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	repo, err := NewSQLiteHistoryRepository(path, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		repo.Record(&domain.HistoryRecord{CorrelationID: fmt.Sprintf("id-%d", i), URL: "u", Success: true, Attempts: 1})
	}
	require.NoError(t, repo.Close())

	// recording after close is dropped, not a panic
	repo.Record(&domain.HistoryRecord{CorrelationID: "late", URL: "u"})
	repo.Flush()

	reopened := openTestHistory(t, path)
	stats, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.Total)
}
