// Package handler exposes admin read access to the audit chain.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/httputil"
)

type Handler struct {
	log    audit.Log
	logger *slog.Logger
}

func New(log audit.Log, logger *slog.Logger) *Handler {
	return &Handler{log: log, logger: logger}
}

// Register mounts the audit routes. Callers gate them behind admin auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit-log", h.list)
	r.Get("/audit-log/verify", h.verify)
}

func seqParam(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a sequence number")
	}
	return seq, nil
}

type entryResponse struct {
	Seq           uint64          `json:"seq"`
	EventID       string          `json:"event_id"`
	PrevDigest    string          `json:"prev_digest"`
	PayloadDigest string          `json:"payload_digest"`
	Digest        string          `json:"digest"`
	Event         json.RawMessage `json:"event"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	from, err := seqParam(r, "from")
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	to, err := seqParam(r, "to")
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	entries, err := h.log.Range(r.Context(), from, to)
	if err != nil {
		httputil.WriteError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log"))
		return
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = entryResponse{
			Seq:           e.Seq,
			EventID:       e.EventID,
			PrevDigest:    e.PrevDigest,
			PayloadDigest: e.PayloadDigest,
			Digest:        e.Digest,
			Event:         json.RawMessage(e.Payload),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	from, err := seqParam(r, "from")
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	to, err := seqParam(r, "to")
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	valid, err := h.log.VerifyChain(r.Context(), from, to)
	if err != nil {
		httputil.WriteError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify audit log"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{Valid: valid, From: from, To: to})
}
