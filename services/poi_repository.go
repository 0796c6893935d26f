package services

import (
	"context"
	"sync"

	"poi-map/models"
)

// POIRepository is the backing store behind the /api routes. Approval
// promotion happens outside this service.
type POIRepository interface {
	ListApproved(ctx context.Context) ([]models.POI, error)
	ListDraft(ctx context.Context) ([]models.POI, error)
	// SaveDraft stores poi as a draft, replacing any draft with the same id.
	SaveDraft(ctx context.Context, poi models.POI) error
}

// MemoryRepository keeps both lists in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	approved []models.POI
	draft    []models.POI
}

func NewMemoryRepository(approved ...models.POI) *MemoryRepository {
	r := &MemoryRepository{}
	for _, poi := range approved {
		poi.Approved = true
		r.approved = append(r.approved, poi)
	}
	return r
}

func (r *MemoryRepository) ListApproved(_ context.Context) ([]models.POI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePOIs(r.approved), nil
}

func (r *MemoryRepository) ListDraft(_ context.Context) ([]models.POI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePOIs(r.draft), nil
}

func (r *MemoryRepository) SaveDraft(_ context.Context, poi models.POI) error {
	poi.Approved = false
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.draft {
		if r.draft[i].ID == poi.ID {
			r.draft[i] = poi
			return nil
		}
	}
	r.draft = append(r.draft, poi)
	return nil
}
