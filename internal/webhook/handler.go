package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

const maxPayloadBytes = 5 << 20

// Handler serves POST /webhooks/{provider}.
type Handler struct {
	ingester *Ingester
}

// NewHandler creates the HTTP entry point.
func NewHandler(ingester *Ingester) *Handler {
	return &Handler{ingester: ingester}
}

// RegisterRoutes mounts the webhook route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{provider}", h.Receive)
}

// Receive parses and applies one payload. Malformed payloads get 400 so the
// provider does not retry them; store failures get 500 so it does.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		httputil.BadRequest(w, "payload unreadable or too large")
		return
	}

	sum, err := h.ingester.Ingest(r.Context(), provider, body)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		httputil.NotFound(w, err.Error())
	case err != nil && sum == nil:
		httputil.BadRequest(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, sum)
	}
}
