package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"poi-map/middleware"
	"poi-map/models"
	"poi-map/services"
	"poi-map/utils/errors"
)

// SessionHandler exposes the session core to the map UI.
type SessionHandler struct {
	session       *services.Session
	notifications *services.NotificationLog
}

type POIListResponse struct {
	Markers      []models.Marker `json:"markers"`
	Count        int             `json:"count"`
	Revision     uint64          `json:"revision"`
	LastSyncTime int64           `json:"lastSyncTime"`
}

type SubmissionResponse struct {
	OK     bool   `json:"ok"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

type POIResponse struct {
	POI        models.Marker       `json:"poi"`
	Submission *SubmissionResponse `json:"submission,omitempty"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

type stageRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type commitRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type typeInfo struct {
	Type  models.POIType `json:"type"`
	Color string         `json:"color"`
}

func NewSessionHandler(session *services.Session, notifications *services.NotificationLog) *SessionHandler {
	return &SessionHandler{session: session, notifications: notifications}
}

func (h *SessionHandler) Register(r *mux.Router) {
	s := r.PathPrefix("/session").Subrouter()
	s.HandleFunc("/pois", h.ListPOIs).Methods("GET", "OPTIONS")
	s.HandleFunc("/pois", h.CreatePOI).Methods("POST", "OPTIONS")
	s.HandleFunc("/pois/{id}", h.GetPOI).Methods("GET", "OPTIONS")
	s.HandleFunc("/pois/{id}", h.UpdatePOI).Methods("PATCH", "OPTIONS")
	s.HandleFunc("/pois/{id}", h.DeletePOI).Methods("DELETE", "OPTIONS")
	s.HandleFunc("/pois/{id}/visibility", h.SetVisibility).Methods("PUT", "OPTIONS")
	s.HandleFunc("/groups/{type}/visibility", h.SetGroupVisibility).Methods("PUT", "OPTIONS")
	s.HandleFunc("/draft", h.GetDraft).Methods("GET", "OPTIONS")
	s.HandleFunc("/draft", h.StageDraft).Methods("POST", "OPTIONS")
	s.HandleFunc("/draft", h.CancelDraft).Methods("DELETE", "OPTIONS")
	s.HandleFunc("/draft/commit", h.CommitDraft).Methods("POST", "OPTIONS")
	s.HandleFunc("/sync", h.Sync).Methods("POST", "OPTIONS")
	s.HandleFunc("/fallback", h.ListFallback).Methods("GET", "OPTIONS")
	s.HandleFunc("/fallback/replay", h.ReplayFallback).Methods("POST", "OPTIONS")
	s.HandleFunc("/notifications", h.ListNotifications).Methods("GET", "OPTIONS")
	s.HandleFunc("/types", h.ListTypes).Methods("GET", "OPTIONS")
}

// ListPOIs returns the visible markers; ?all=true includes hidden POIs.
func (h *SessionHandler) ListPOIs(w http.ResponseWriter, r *http.Request) {
	store := h.session.Store
	var markers []models.Marker
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		for _, poi := range store.List() {
			markers = append(markers, models.NewMarker(poi))
		}
	} else {
		markers = h.session.Markers()
	}
	if markers == nil {
		markers = []models.Marker{}
	}

	var lastSync int64
	if t := store.LastSync(); !t.IsZero() {
		lastSync = t.UnixMilli()
	}
	middleware.WriteJSON(w, http.StatusOK, POIListResponse{
		Markers:      markers,
		Count:        len(markers),
		Revision:     store.Revision(),
		LastSyncTime: lastSync,
	})
}

func (h *SessionHandler) GetPOI(w http.ResponseWriter, r *http.Request) {
	poi, ok := h.session.Store.Find(mux.Vars(r)["id"])
	if !ok {
		middleware.WriteError(w, errors.ErrNotFound)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, POIResponse{POI: models.NewMarker(poi)})
}

func (h *SessionHandler) CreatePOI(w http.ResponseWriter, r *http.Request) {
	var input services.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}
	poi, res := h.session.CreatePOI(r.Context(), input)
	middleware.WriteJSON(w, http.StatusCreated, POIResponse{POI: models.NewMarker(poi), Submission: submission(res)})
}

// UpdatePOI answers 204 for an unknown id; the edit is a no-op.
func (h *SessionHandler) UpdatePOI(w http.ResponseWriter, r *http.Request) {
	var patch models.POIPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}
	poi, res, ok := h.session.EditPOI(r.Context(), mux.Vars(r)["id"], patch)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, POIResponse{POI: models.NewMarker(poi), Submission: submission(res)})
}

func (h *SessionHandler) DeletePOI(w http.ResponseWriter, r *http.Request) {
	h.session.DeletePOI(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	visible, ok := decodeVisibility(w, r)
	if !ok {
		return
	}
	h.session.Store.SetVisible(r.Context(), mux.Vars(r)["id"], visible)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) SetGroupVisibility(w http.ResponseWriter, r *http.Request) {
	visible, ok := decodeVisibility(w, r)
	if !ok {
		return
	}
	poiType := mux.Vars(r)["type"]
	n := h.session.Store.SetGroupVisible(r.Context(), poiType, visible)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"type": poiType, "visible": visible, "updated": n})
}

func (h *SessionHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.session.StagedDraft()
	if !ok {
		middleware.WriteError(w, errors.ErrNoDraft)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, draft)
}

func (h *SessionHandler) StageDraft(w http.ResponseWriter, r *http.Request) {
	var input stageRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, h.session.StageDraft(input.X, input.Y))
}

func (h *SessionHandler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	h.session.CancelDraft()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) CommitDraft(w http.ResponseWriter, r *http.Request) {
	var input commitRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}
	poi, res, err := h.session.CommitDraft(r.Context(), input.Type, input.Description)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, POIResponse{POI: models.NewMarker(poi), Submission: submission(res)})
}

// Sync runs a debounced sync; ?force=true bypasses the debounce.
func (h *SessionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, errors.ErrInvalidInput.WithDetails("force must be a boolean"))
			return
		}
		force = b
	}
	middleware.WriteJSON(w, http.StatusOK, h.session.Sync.Sync(r.Context(), force))
}

func (h *SessionHandler) ListFallback(w http.ResponseWriter, r *http.Request) {
	pending, err := h.session.Drafts.Pending(r.Context())
	if err != nil {
		middleware.WriteError(w, errors.Wrap(err, "CACHE_ERROR", "Failed to read fallback list", http.StatusInternalServerError))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pending)
}

func (h *SessionHandler) ReplayFallback(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Drafts.ReplayFallback(r.Context())
	if err != nil {
		middleware.WriteError(w, errors.Wrap(err, "CACHE_ERROR", "Failed to replay fallback list", http.StatusInternalServerError))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var items []services.Notification
	if h.notifications != nil {
		items = h.notifications.Recent()
	}
	if items == nil {
		items = []services.Notification{}
	}
	middleware.WriteJSON(w, http.StatusOK, items)
}

func (h *SessionHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types := models.AllTypes()
	out := make([]typeInfo, 0, len(types))
	for _, t := range types {
		out = append(out, typeInfo{Type: t, Color: t.Color()})
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

func decodeVisibility(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var input visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Visible == nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails("visible is required"))
		return false, false
	}
	return *input.Visible, true
}

func submission(res services.SubmitResult) *SubmissionResponse {
	out := &SubmissionResponse{OK: res.OK, Queued: res.Queued}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
