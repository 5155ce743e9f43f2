package terminology

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/gateway/middleware"
	"github.com/setu-health/terminology/pkg/icd"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/terminology/autocomplete", h.autocomplete).Methods(http.MethodGet)
	r.HandleFunc("/terminology/translate", h.translate).Methods(http.MethodPost)
	r.HandleFunc("/terminology/entity", h.entity).Methods(http.MethodGet)
}

func (h *Handler) autocomplete(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("term")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter term required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	matches, err := h.service.Autocomplete(query, limit)
	if errors.Is(err, ErrVocabularyUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "vocabulary unavailable")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "autocomplete failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (h *Handler) translate(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Translate(r.Context(), middleware.Actor(r), req)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) entity(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("uri")
	if id == "" {
		writeError(w, http.StatusBadRequest, "query parameter uri required")
		return
	}

	entity, stemCode, err := h.service.EntityDetail(r.Context(), middleware.Actor(r), id)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity":    entity,
		"stem_code": stemCode,
	})
}

// writeUpstreamError maps WHO client failures onto gateway-style statuses.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var authErr *icd.AuthError
	var svcErr *icd.ServiceError

	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, "upstream authentication failed")
	case errors.As(err, &svcErr):
		writeError(w, http.StatusBadGateway, "upstream terminology service failed")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
