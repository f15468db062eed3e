package security

import (
	"context"
	"maps"
	"sync"
	"time"
)

// memoryRepository keeps events in process memory for the memory store driver.
type memoryRepository struct {
	mu     sync.Mutex
	nextID int64
	events []SecurityEvent
}

// NewMemoryRepository creates an empty in-memory event log.
func NewMemoryRepository() SecurityEventRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) Log(_ context.Context, event *SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	stored := *event
	stored.Details = maps.Clone(event.Details)
	r.events = append(r.events, stored)
	return nil
}

// ListByEmail walks the log backwards so the newest events come first.
func (r *memoryRepository) ListByEmail(_ context.Context, email string, limit int) ([]SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SecurityEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].Email == email {
			e := r.events[i]
			e.Details = maps.Clone(e.Details)
			out = append(out, e)
		}
	}
	return out, nil
}
