package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/evolution/webhook"
)

func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	out := h.dispatcher.Process(r.Context(), webhook.Inbound{
		Body:      body,
		Instance:  r.PathValue("instance"),
		Signature: r.Header.Get(h.config.SignatureHeader),
		Timestamp: r.Header.Get(h.config.TimestampHeader),
	})

	if out.State != webhook.StateFailed {
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	switch {
	case errors.Is(out.Err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(out.Err, webhook.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid payload")
	default:
		// The sender redelivers on a non-2xx answer.
		writeError(w, http.StatusInternalServerError, "webhook could not be processed")
	}
}
