package services

import (
	"context"
	"log"
	"sync"
	"time"

	"poi-map/models"
)

// Persister writes the whole collection to the local cache.
type Persister interface {
	Save(ctx context.Context, pois []models.POI, lastSync time.Time) error
}

// DraftSubmitter sends a newly created POI to the backing store.
type DraftSubmitter interface {
	Submit(ctx context.Context, poi models.POI) SubmitResult
}

// SubmitResult reports the outcome of one draft submission. A failed
// submission that was parked in the fallback list has Queued set.
type SubmitResult struct {
	POIID  string `json:"poiId"`
	OK     bool   `json:"ok"`
	Queued bool   `json:"queued"`
	Err    error  `json:"-"`
}

// POIStore is the in-memory POI collection of one session. Every mutation
// is written through to the cache before the call returns.
//
// A full Replace discards local edits made since the previous sync that
// have not reached the backing store yet.
type POIStore struct {
	mu       sync.Mutex
	pois     []models.POI
	lastSync time.Time
	revision uint64

	cache     Persister
	submitter DraftSubmitter
	onChange  func(revision uint64)
}

type StoreOption func(*POIStore)

// WithSubmitter sets where Add sends new POIs. Without one, Add only
// stores locally.
func WithSubmitter(s DraftSubmitter) StoreOption {
	return func(ps *POIStore) { ps.submitter = s }
}

// WithRenderHook registers the callback fired after every mutation.
func WithRenderHook(fn func(revision uint64)) StoreOption {
	return func(ps *POIStore) { ps.onChange = fn }
}

func NewPOIStore(cache Persister, opts ...StoreOption) *POIStore {
	s := &POIStore{cache: cache, pois: []models.POI{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends poi as an unapproved entry and submits it as a draft. The
// id is not checked for duplicates.
func (s *POIStore) Add(ctx context.Context, poi models.POI) (models.POI, SubmitResult) {
	stored := s.Insert(ctx, poi)
	return stored, s.Submit(ctx, stored)
}

// Insert stores the POI unapproved and renders without submitting it.
func (s *POIStore) Insert(ctx context.Context, poi models.POI) models.POI {
	poi.Approved = false

	s.mu.Lock()
	s.pois = append(s.pois, poi)
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
	return poi
}

// Submit sends poi to the backing store as a draft. Without a submitter
// the result is neither OK nor queued.
func (s *POIStore) Submit(ctx context.Context, poi models.POI) SubmitResult {
	s.mu.Lock()
	sub := s.submitter
	s.mu.Unlock()
	if sub == nil {
		return SubmitResult{POIID: poi.ID}
	}
	return sub.Submit(ctx, poi)
}

// Update applies patch to the POI with the given id. Edited POIs lose
// their approval until the backing store promotes them again. Reports
// false, changing nothing, when the id is unknown.
func (s *POIStore) Update(ctx context.Context, id string, patch models.POIPatch) (models.POI, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.POI{}, false
	}
	if patch.Type != nil {
		s.pois[i].Type = *patch.Type
	}
	if patch.Description != nil {
		s.pois[i].Description = *patch.Description
	}
	s.pois[i].Approved = false
	updated := s.pois[i]
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
	return updated, true
}

// Remove drops the POI locally. The backing store is not told.
func (s *POIStore) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.pois = append(s.pois[:i:i], s.pois[i+1:]...)
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
	return true
}

func (s *POIStore) SetVisible(ctx context.Context, id string, visible bool) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.pois[i].Visible = visible
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
	return true
}

// SetGroupVisible sets visibility on every POI of poiType and returns how
// many matched.
func (s *POIStore) SetGroupVisible(ctx context.Context, poiType string, visible bool) int {
	s.mu.Lock()
	n := 0
	for i := range s.pois {
		if s.pois[i].Type == poiType {
			s.pois[i].Visible = visible
			n++
		}
	}
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
	return n
}

func (s *POIStore) Find(id string) (models.POI, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.pois[i], true
	}
	return models.POI{}, false
}

// List returns a copy of the collection in store order.
func (s *POIStore) List() []models.POI {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.POI, len(s.pois))
	copy(out, s.pois)
	return out
}

// Replace swaps in a new collection wholesale, records lastSync and
// persists both.
func (s *POIStore) Replace(ctx context.Context, pois []models.POI, lastSync time.Time) {
	s.mu.Lock()
	s.pois = clonePOIs(pois)
	s.lastSync = lastSync
	rev := s.commitLocked(ctx)
	s.mu.Unlock()
	s.rendered(rev)
}

// Restore loads a cached collection without writing it back.
func (s *POIStore) Restore(pois []models.POI, lastSync time.Time) {
	s.mu.Lock()
	s.pois = clonePOIs(pois)
	s.lastSync = lastSync
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.rendered(rev)
}

func (s *POIStore) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Revision increases on every change to the collection.
func (s *POIStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *POIStore) indexLocked(id string) int {
	for i := range s.pois {
		if s.pois[i].ID == id {
			return i
		}
	}
	return -1
}

// commitLocked bumps the revision and writes the collection to the cache.
// A failed write is logged; the in-memory change stands.
func (s *POIStore) commitLocked(ctx context.Context) uint64 {
	s.revision++
	if s.cache != nil {
		if err := s.cache.Save(ctx, s.pois, s.lastSync); err != nil {
			log.Printf("Failed to save POIs to cache: %v", err)
		}
	}
	return s.revision
}

func (s *POIStore) rendered(rev uint64) {
	if s.onChange != nil {
		s.onChange(rev)
	}
}

func clonePOIs(pois []models.POI) []models.POI {
	out := make([]models.POI, len(pois))
	copy(out, pois)
	return out
}
