package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"poi-map/cache"
	"poi-map/models"
	"poi-map/remote"
)

type fakeRemote struct {
	mu           sync.Mutex
	approved     []models.RawPOI
	draft        []models.RawPOI
	approvedErr  error
	draftErr     error
	submitErr    error
	approvedHits int
	draftHits    int
	submitted    []models.POI
}

func (f *fakeRemote) FetchApproved(context.Context) ([]models.RawPOI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvedHits++
	if f.approvedErr != nil {
		return nil, f.approvedErr
	}
	return f.approved, nil
}

func (f *fakeRemote) FetchDraft(context.Context) ([]models.RawPOI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draftHits++
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return f.draft, nil
}

func (f *fakeRemote) SubmitDraft(_ context.Context, poi models.POI) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, poi)
	return nil
}

func (f *fakeRemote) hits() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approvedHits, f.draftHits
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordingNotifier) Notify(message string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, IsError: isError})
}

func (r *recordingNotifier) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		if n.IsError {
			out = append(out, n.Message)
		}
	}
	return out
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		out = append(out, n.Message)
	}
	return out
}

func transportErr() error {
	return &remote.TransportError{Op: "fetch", Err: errors.New("connection refused")}
}

func statusErr(code int) error {
	return &remote.StatusError{Op: "fetch", StatusCode: code}
}

type testEnv struct {
	remote   *fakeRemote
	cache    *cache.LocalCache
	notifier *recordingNotifier
	drafts   *DraftService
	store    *POIStore
	sync     *SyncCoordinator
	session  *Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		remote:   &fakeRemote{},
		cache:    cache.NewLocalCache(cache.NewMemoryKV(), "", ""),
		notifier: &recordingNotifier{},
	}
	env.drafts = NewDraftService(env.remote, env.cache, env.notifier)
	env.store = NewPOIStore(env.cache, WithSubmitter(env.drafts))
	env.sync = NewSyncCoordinator(env.store, env.remote, env.cache, env.notifier, DefaultSyncThreshold)
	env.session = NewSession(env.store, env.sync, env.drafts, env.notifier)
	return env
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
