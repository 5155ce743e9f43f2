package condition

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/gateway/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/conditions/fhir", h.generate).Methods(http.MethodPost)
	r.HandleFunc("/conditions/bundle", h.storeBundle).Methods(http.MethodPost)
	r.HandleFunc("/conditions", h.list).Methods(http.MethodGet)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req models.ConditionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resource, err := h.service.Generate(r.Context(), middleware.Actor(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, resource)
}

func (h *Handler) storeBundle(w http.ResponseWriter, r *http.Request) {
	stored, err := h.service.StoreBundle(r.Context(), middleware.Actor(r), r.Body)
	if errors.Is(err, ErrNotABundle) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stored": stored,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 20, 100)
	offset := parseQueryInt(r, "offset", 0, 1<<30)
	patientID := r.URL.Query().Get("patient_id")

	conditions, err := h.service.List(r.Context(), patientID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list conditions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditions": conditions,
		"count":      len(conditions),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseQueryInt(r *http.Request, name string, fallback, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
