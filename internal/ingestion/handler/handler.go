package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/astra-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
)

const maxRequestBytes = 4 << 20

type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Routes registers the feed endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.publisher.Reject()
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fetchedAt, err := validator.ValidateIngestRequest(&req, time.Now())
	if err != nil {
		h.publisher.Reject()
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, req.URL, req.Title, req.Body, fetchedAt)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "url", req.URL, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, apperrors.PublicMessage(err))
		return
	}
	log.Info("document ingested", "doc_id", resp.DocID, "url", resp.URL)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
