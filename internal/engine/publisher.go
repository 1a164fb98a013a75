package engine

import (
	"sync"
	"time"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

const subscriberBuffer = 16

// Registry is the progress publisher: the latest event per correlation id plus
// live subscribers. Entries are created on first publish and live until Clear.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*progressEntry
	nextSub int
}

type progressEntry struct {
	latest    domain.ProgressEvent
	hasEvent  bool
	listeners map[int]chan domain.ProgressEvent
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*progressEntry)}
}

// Publish merges event over the previous one for its correlation id. The
// percentage never goes down unless event.Reset is set.
func (r *Registry) Publish(event domain.ProgressEvent) {
	if event.CorrelationID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[event.CorrelationID]
	if !ok {
		e = &progressEntry{listeners: make(map[int]chan domain.ProgressEvent)}
		r.entries[event.CorrelationID] = e
	}

	merged := event
	if e.hasEvent {
		merged = mergeEvent(e.latest, event)
	}
	merged.Reset = false
	if merged.UpdatedAt.IsZero() {
		merged.UpdatedAt = time.Now()
	}
	e.latest = merged
	e.hasEvent = true

	for _, ch := range e.listeners {
		offerLatest(ch, merged)
	}
}

// mergeEvent overlays next on prev
func mergeEvent(prev, next domain.ProgressEvent) domain.ProgressEvent {
	merged := prev
	merged.UpdatedAt = next.UpdatedAt

	if next.Phase != "" && next.Phase != prev.Phase {
		merged.Phase = next.Phase
		merged.Speed = ""
		merged.ETA = ""
	}
	if next.Reset || next.Percent > prev.Percent {
		merged.Percent = next.Percent
	}
	if next.Message != "" {
		merged.Message = next.Message
	}
	if next.Speed != "" {
		merged.Speed = next.Speed
	}
	if next.ETA != "" {
		merged.ETA = next.ETA
	}
	if next.Error != "" {
		merged.Error = next.Error
	}
	if next.Attempt != 0 {
		merged.Attempt = next.Attempt
	}
	if next.TotalBytes != 0 {
		merged.TotalBytes = next.TotalBytes
	}
	return merged
}

// offerLatest delivers ev without blocking, replacing an unread older event
func offerLatest(ch chan domain.ProgressEvent, ev domain.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// Get returns the latest event for id
func (r *Registry) Get(id string) (domain.ProgressEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !e.hasEvent {
		return domain.ProgressEvent{}, false
	}
	return e.latest, true
}

// Subscribe returns a channel of merged events for id, starting with the
// latest one if any. The channel is closed by Clear or by the returned cancel.
func (r *Registry) Subscribe(id string) (<-chan domain.ProgressEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		e = &progressEntry{listeners: make(map[int]chan domain.ProgressEvent)}
		r.entries[id] = e
	}

	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	if e.hasEvent {
		ch <- e.latest
	}
	r.nextSub++
	subID := r.nextSub
	e.listeners[subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() { r.unsubscribe(id, subID) })
	}
	return ch, cancel
}

func (r *Registry) unsubscribe(id string, subID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	if ch, ok := e.listeners[subID]; ok {
		delete(e.listeners, subID)
		close(ch)
	}
	// A subscription to an id that never published leaves nothing behind
	if !e.hasEvent && len(e.listeners) == 0 {
		delete(r.entries, id)
	}
}

// Clear removes the entry for id and closes its subscribers
func (r *Registry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	for subID, ch := range e.listeners {
		delete(e.listeners, subID)
		close(ch)
	}
	delete(r.entries, id)
}

// Len returns the number of live entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
