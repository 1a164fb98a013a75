package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindPolicy(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
		degrades  bool
	}{
		{KindAccessBlocked, true, false},
		{KindNetwork, true, false},
		{KindTimeout, true, true},
		{KindFormatUnavailable, true, true},
		{KindMergeFailure, true, true},
		{KindValidationRejected, true, true},
		{KindUnknown, true, true},
		{KindProcessError, false, false},
		{KindCancelled, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.kind.Retryable())
			assert.Equal(t, tt.degrades, tt.kind.Degrades())
			assert.NotEmpty(t, tt.kind.Message())
		})
	}
}

func TestTimeoutSuggestsLowerQuality(t *testing.T) {
	err := NewFetchError(KindTimeout, 3, "", nil)
	assert.Equal(t, "try lower quality", err.Suggestion)
	assert.Equal(t, 3, err.Attempts)
	assert.Empty(t, KindCancelled.Suggestion())
}

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("fetch failed: %w", NewFetchError(KindNetwork, 1, "", cause))

	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.True(t, IsCancelled(NewFetchError(KindCancelled, 1, "", nil)))
	assert.False(t, IsCancelled(nil))
}
