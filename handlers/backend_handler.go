package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"poi-map/middleware"
	"poi-map/models"
	"poi-map/services"
	"poi-map/utils/errors"
)

// BackendHandler serves the approved and draft lists and accepts draft
// submissions. It is the remote side of the session's sync.
type BackendHandler struct {
	repo services.POIRepository
}

func NewBackendHandler(repo services.POIRepository) *BackendHandler {
	return &BackendHandler{repo: repo}
}

func (h *BackendHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/pois-approved", h.ListApproved).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/pois-draft", h.ListDraft).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/save-poi", h.SavePOI).Methods("POST", "OPTIONS")
}

func (h *BackendHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	pois, err := h.repo.ListApproved(r.Context())
	if err != nil {
		middleware.WriteError(w, errors.Wrap(err, "DB_ERROR", "Failed to load approved POIs", http.StatusInternalServerError))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pois)
}

func (h *BackendHandler) ListDraft(w http.ResponseWriter, r *http.Request) {
	pois, err := h.repo.ListDraft(r.Context())
	if err != nil {
		middleware.WriteError(w, errors.Wrap(err, "DB_ERROR", "Failed to load draft POIs", http.StatusInternalServerError))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pois)
}

func (h *BackendHandler) SavePOI(w http.ResponseWriter, r *http.Request) {
	var poi models.POI
	if err := json.NewDecoder(r.Body).Decode(&poi); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}
	if strings.TrimSpace(poi.ID) == "" {
		middleware.WriteError(w, errors.ErrInvalidInput.WithDetails("id is required"))
		return
	}
	if err := h.repo.SaveDraft(r.Context(), poi); err != nil {
		middleware.WriteError(w, errors.Wrap(err, "DB_ERROR", "Failed to save POI", http.StatusInternalServerError))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "saved", "id": poi.ID})
}
