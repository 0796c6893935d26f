package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"poi-map/models"
	"poi-map/utils/errors"
)

// CreateInput is a POI placed directly from the map context menu.
type CreateInput struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Session owns the store and its collaborators for one running map view.
// It also holds the single staged draft of the add-flow.
type Session struct {
	Store    *POIStore
	Sync     *SyncCoordinator
	Drafts   *DraftService
	notifier Notifier
	now      func() time.Time

	mu     sync.Mutex
	staged *models.POI
}

func NewSession(store *POIStore, coordinator *SyncCoordinator, drafts *DraftService, notifier Notifier) *Session {
	if notifier == nil {
		notifier = NotifierFunc(func(string, bool) {})
	}
	return &Session{
		Store:    store,
		Sync:     coordinator,
		Drafts:   drafts,
		notifier: notifier,
		now:      time.Now,
	}
}

// StageDraft starts the add-flow at (x, y). The draft is not part of the
// collection until committed; staging again replaces it.
func (s *Session) StageDraft(x, y float64) models.POI {
	t := s.now()
	draft := models.POI{
		ID:      models.NewTempID(t),
		Name:    models.DefaultName(t),
		X:       x,
		Y:       y,
		Visible: true,
	}
	s.mu.Lock()
	s.staged = &draft
	s.mu.Unlock()
	return draft
}

func (s *Session) StagedDraft() (models.POI, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return models.POI{}, false
	}
	return *s.staged, true
}

func (s *Session) CancelDraft() {
	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()
}

// CommitDraft promotes the staged draft to a stored POI with a fresh id.
func (s *Session) CommitDraft(ctx context.Context, poiType, description string) (models.POI, SubmitResult, error) {
	s.mu.Lock()
	staged := s.staged
	s.staged = nil
	s.mu.Unlock()
	if staged == nil {
		return models.POI{}, SubmitResult{}, errors.ErrNoDraft
	}
	t := s.now()
	poi := models.POI{
		ID:          models.NewPOIID(t),
		Name:        staged.Name,
		Type:        strings.TrimSpace(poiType),
		Description: strings.TrimSpace(description),
		X:           staged.X,
		Y:           staged.Y,
		Visible:     true,
		DateAdded:   models.FormatDateAdded(t),
	}
	stored, res := s.add(ctx, poi)
	return stored, res, nil
}

// CreatePOI adds a POI in one step. An empty name is generated.
func (s *Session) CreatePOI(ctx context.Context, in CreateInput) (models.POI, SubmitResult) {
	t := s.now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = models.DefaultName(t)
	}
	poi := models.POI{
		ID:          models.NewPOIID(t),
		Name:        name,
		Type:        strings.TrimSpace(in.Type),
		Description: strings.TrimSpace(in.Description),
		X:           in.X,
		Y:           in.Y,
		Visible:     true,
		DateAdded:   models.FormatDateAdded(t),
	}
	return s.add(ctx, poi)
}

func (s *Session) add(ctx context.Context, poi models.POI) (models.POI, SubmitResult) {
	stored := s.Store.Insert(ctx, poi)
	s.notifier.Notify("POI added successfully (awaiting approval)", false)
	return stored, s.Store.Submit(ctx, stored)
}

// EditPOI applies the patch and resubmits the POI as a draft. ok is false
// for an unknown id, in which case nothing is sent.
func (s *Session) EditPOI(ctx context.Context, id string, patch models.POIPatch) (models.POI, SubmitResult, bool) {
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	updated, ok := s.Store.Update(ctx, id, patch)
	if !ok {
		return models.POI{}, SubmitResult{}, false
	}
	s.notifier.Notify("POI updated successfully", false)
	if s.Drafts == nil {
		return updated, SubmitResult{POIID: id}, true
	}
	return updated, s.Drafts.Submit(ctx, updated), true
}

func (s *Session) DeletePOI(ctx context.Context, id string) bool {
	if !s.Store.Remove(ctx, id) {
		return false
	}
	s.notifier.Notify("POI deleted successfully", false)
	return true
}

// Markers returns the visible POIs ready to draw.
func (s *Session) Markers() []models.Marker {
	pois := s.Store.List()
	markers := make([]models.Marker, 0, len(pois))
	for _, poi := range pois {
		if poi.Visible {
			markers = append(markers, models.NewMarker(poi))
		}
	}
	return markers
}
