package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// memoryRepository keeps records in process memory. Each instance is
// independent, so tests and demo runs never share state.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*UserRecord
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() UserRepository {
	return &memoryRepository{
		records: make(map[string]*UserRecord),
		now:     time.Now,
	}
}

// Get returns a copy of the stored record.
func (r *memoryRepository) Get(_ context.Context, email string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok {
		return nil, apperror.NewNotFound("no account found for this email")
	}
	return rec.clone(), nil
}

// Create stores an empty record under email.
func (r *memoryRepository) Create(_ context.Context, email string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[email]; ok {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	now := r.now().UTC()
	rec := &UserRecord{
		ID:            uuid.NewString(),
		Email:         email,
		ClickProfile:  []Point{},
		TypingSamples: []float64{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.records[email] = rec
	return rec.clone(), nil
}

// Update applies the change under the repository lock, so concurrent writers
// to the same record never lose an update.
func (r *memoryRepository) Update(_ context.Context, email string, update FieldUpdate) error {
	if err := update.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok {
		return apperror.NewNotFound("no account found for this email")
	}
	update.apply(rec)
	rec.UpdatedAt = r.now().UTC()
	return nil
}
