package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"poi-map/models"
)

// DraftRemote is the write side of the backing store.
type DraftRemote interface {
	SubmitDraft(ctx context.Context, poi models.POI) error
}

// FallbackQueue holds POIs whose submission failed.
type FallbackQueue interface {
	AppendFallback(ctx context.Context, poi models.POI) error
	Fallback(ctx context.Context) ([]models.POI, error)
	RemoveFallback(ctx context.Context, sent []models.POI) error
}

// DraftService submits drafts and parks failed ones in the fallback list.
// Parked POIs are only resent by an explicit ReplayFallback.
type DraftService struct {
	remote   DraftRemote
	fallback FallbackQueue
	notifier Notifier

	replayMu sync.Mutex
}

func NewDraftService(remote DraftRemote, fallback FallbackQueue, notifier Notifier) *DraftService {
	if notifier == nil {
		notifier = NotifierFunc(func(string, bool) {})
	}
	return &DraftService{remote: remote, fallback: fallback, notifier: notifier}
}

func (s *DraftService) Submit(ctx context.Context, poi models.POI) SubmitResult {
	res := SubmitResult{POIID: poi.ID}
	if err := s.remote.SubmitDraft(ctx, poi); err != nil {
		log.Printf("Error saving POI %s to backing store: %v", poi.ID, err)
		res.Err = err
		s.notifier.Notify("Failed to save POI to file", true)
		if ferr := s.fallback.AppendFallback(ctx, poi); ferr != nil {
			log.Printf("Failed to park POI %s in fallback list: %v", poi.ID, ferr)
			return res
		}
		res.Queued = true
		return res
	}
	log.Printf("POI %s saved to backing store", poi.ID)
	s.notifier.Notify("POI saved to draft file", false)
	res.OK = true
	return res
}

// Pending lists the POIs waiting in the fallback list.
func (s *DraftService) Pending(ctx context.Context) ([]models.POI, error) {
	return s.fallback.Fallback(ctx)
}

type ReplayResult struct {
	Sent      []string `json:"sent"`
	Remaining []string `json:"remaining"`
}

// ReplayFallback resends every parked POI once. POIs that fail again stay
// in the list in their original order, and POIs parked while the replay is
// running are left for the next one. Replays do not overlap.
func (s *DraftService) ReplayFallback(ctx context.Context) (ReplayResult, error) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	pending, err := s.fallback.Fallback(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("load fallback list: %w", err)
	}
	res := ReplayResult{Sent: []string{}, Remaining: []string{}}
	if len(pending) == 0 {
		return res, nil
	}

	var sent []models.POI
	for _, poi := range pending {
		if err := s.remote.SubmitDraft(ctx, poi); err != nil {
			log.Printf("Replay of POI %s failed: %v", poi.ID, err)
			res.Remaining = append(res.Remaining, poi.ID)
			continue
		}
		sent = append(sent, poi)
		res.Sent = append(res.Sent, poi.ID)
	}
	if err := s.fallback.RemoveFallback(ctx, sent); err != nil {
		return res, fmt.Errorf("rewrite fallback list: %w", err)
	}
	if len(res.Remaining) > 0 {
		s.notifier.Notify(fmt.Sprintf("%d POIs could not be resent", len(res.Remaining)), true)
	} else {
		s.notifier.Notify(fmt.Sprintf("Resent %d POIs", len(res.Sent)), false)
	}
	return res, nil
}
