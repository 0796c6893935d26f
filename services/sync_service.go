package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"poi-map/cache"
	"poi-map/models"
	"poi-map/remote"
)

const DefaultSyncThreshold = 60 * time.Second

// RemoteSource is the read side of the backing store.
type RemoteSource interface {
	FetchApproved(ctx context.Context) ([]models.RawPOI, error)
	FetchDraft(ctx context.Context) ([]models.RawPOI, error)
}

// SnapshotLoader reads the cached collection.
type SnapshotLoader interface {
	Load(ctx context.Context) cache.Snapshot
}

// SyncOutcome describes one reconciliation with the backing store.
type SyncOutcome struct {
	Ran         bool  `json:"ran"`
	Approved    int   `json:"approved"`
	Draft       int   `json:"draft"`
	Duplicates  int   `json:"duplicates"`
	FromCache   bool  `json:"fromCache"`
	ApprovedErr error `json:"-"`
	DraftErr    error `json:"-"`
}

// SyncCoordinator fills the store from the approved and draft lists. There
// is no guard against overlapping runs; the last one to finish wins.
type SyncCoordinator struct {
	store     *POIStore
	remote    RemoteSource
	cache     SnapshotLoader
	notifier  Notifier
	threshold time.Duration
	now       func() time.Time
}

func NewSyncCoordinator(store *POIStore, src RemoteSource, snapshots SnapshotLoader, notifier Notifier, threshold time.Duration) *SyncCoordinator {
	if threshold <= 0 {
		threshold = DefaultSyncThreshold
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string, bool) {})
	}
	return &SyncCoordinator{
		store:     store,
		remote:    src,
		cache:     snapshots,
		notifier:  notifier,
		threshold: threshold,
		now:       time.Now,
	}
}

// Load is the startup reconciliation.
func (c *SyncCoordinator) Load(ctx context.Context) SyncOutcome {
	c.notifier.Notify("Loading POIs from files...", false)
	out := c.reconcile(ctx)
	if !out.FromCache {
		c.notifier.Notify("POIs loaded successfully", false)
	}
	return out
}

// Sync reconciles when force is set or the last successful sync is older
// than the threshold; otherwise it does nothing.
func (c *SyncCoordinator) Sync(ctx context.Context, force bool) SyncOutcome {
	if !force && c.now().Sub(c.store.LastSync()) <= c.threshold {
		return SyncOutcome{}
	}
	c.notifier.Notify("Syncing with server...", false)
	out := c.reconcile(ctx)
	if !out.FromCache {
		c.notifier.Notify("Sync complete", false)
	}
	return out
}

// Run calls Sync(false) every interval until ctx is done.
func (c *SyncCoordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sync(ctx, false)
		}
	}
}

func (c *SyncCoordinator) reconcile(ctx context.Context) SyncOutcome {
	var (
		wg                    sync.WaitGroup
		approved, draft       []models.RawPOI
		approvedErr, draftErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		approved, approvedErr = c.remote.FetchApproved(ctx)
	}()
	go func() {
		defer wg.Done()
		draft, draftErr = c.remote.FetchDraft(ctx)
	}()
	wg.Wait()

	out := SyncOutcome{Ran: true, ApprovedErr: approvedErr, DraftErr: draftErr}

	if isTransportFailure(approvedErr) && isTransportFailure(draftErr) {
		log.Printf("Error loading POIs: approved: %v; draft: %v", approvedErr, draftErr)
		snap := c.cache.Load(ctx)
		c.store.Restore(snap.POIs, snap.LastSyncTime)
		c.notifier.Notify("Error loading POIs. Using local data.", true)
		out.FromCache = true
		return out
	}
	if approvedErr != nil {
		log.Printf("Error loading approved POIs: %v", approvedErr)
		approved = nil
	}
	if draftErr != nil {
		log.Printf("Error loading draft POIs: %v", draftErr)
		draft = nil
	}

	merged, approvedDupes, draftDupes := mergeLists(approved, draft)
	out.Approved = len(approved) - approvedDupes
	out.Draft = len(draft) - draftDupes
	out.Duplicates = approvedDupes + draftDupes
	c.store.Replace(ctx, merged, c.now())
	log.Printf("Synced %d approved and %d draft POIs", out.Approved, out.Draft)
	return out
}

// mergeLists tags each record by the list it came from and concatenates
// approved ++ draft. Only the first record with a given id is kept, so an
// approved entry shadows a draft with the same id.
func mergeLists(approved, draft []models.RawPOI) ([]models.POI, int, int) {
	merged := make([]models.POI, 0, len(approved)+len(draft))
	seen := make(map[string]struct{}, len(approved)+len(draft))
	dupes := 0
	add := func(r models.RawPOI, isApproved bool) {
		if _, ok := seen[r.ID]; ok {
			log.Printf("Skipping duplicate POI id %s", r.ID)
			dupes++
			return
		}
		seen[r.ID] = struct{}{}
		merged = append(merged, r.ToPOI(isApproved))
	}
	for _, r := range approved {
		add(r, true)
	}
	approvedDupes := dupes
	for _, r := range draft {
		add(r, false)
	}
	return merged, approvedDupes, dupes - approvedDupes
}

func isTransportFailure(err error) bool {
	var te *remote.TransportError
	return errors.As(err, &te)
}
