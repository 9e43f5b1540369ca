// Package handler exposes the admin escalation queue and resolution.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	"proofpals/pkg/platform/httputil"
	"proofpals/pkg/requestcontext"
)

// Resolver is the escalation service surface the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, subID id.SubmissionID, resolution models.Resolution, resolverID, rationale string) (*models.Submission, error)
	GetResolution(ctx context.Context, subID id.SubmissionID) (*models.Escalation, error)
	ListEscalated(ctx context.Context) ([]*models.Submission, error)
}

type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

func New(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Register mounts the escalation routes. Callers gate them behind admin
// auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/escalations", h.list)
	r.Get("/escalations/{submissionID}", h.getResolution)
	r.Post("/escalations/{submissionID}/resolve", h.resolve)
}

type escalatedResponse struct {
	SubmissionID string       `json:"submission_id"`
	ContentRef   string       `json:"content_ref"`
	Genre        string       `json:"genre,omitempty"`
	Tally        models.Tally `json:"tally"`
	EscalatedAt  *time.Time   `json:"escalated_at,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	subs, err := h.resolver.ListEscalated(r.Context())
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	out := make([]escalatedResponse, len(subs))
	for i, sub := range subs {
		out[i] = escalatedResponse{
			SubmissionID: sub.ID.String(),
			ContentRef:   sub.ContentRef,
			Genre:        sub.Genre,
			Tally:        sub.Tally,
			EscalatedAt:  sub.DecidedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type resolutionResponse struct {
	SubmissionID string    `json:"submission_id"`
	Resolution   string    `json:"resolution"`
	ResolverID   string    `json:"resolver_id"`
	Rationale    string    `json:"rationale,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

func (h *Handler) getResolution(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	esc, err := h.resolver.GetResolution(r.Context(), subID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolutionResponse{
		SubmissionID: esc.SubmissionID.String(),
		Resolution:   string(esc.Resolution),
		ResolverID:   esc.ResolverID,
		Rationale:    esc.Rationale,
		ResolvedAt:   esc.ResolvedAt,
	})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Rationale  string `json:"rationale"`
}

type resolveResponse struct {
	SubmissionID string     `json:"submission_id"`
	Status       string     `json:"status"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	resolution, err := models.ParseResolution(req.Resolution)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	sub, err := h.resolver.Resolve(r.Context(), subID, resolution, requestcontext.ActorID(r.Context()), req.Rationale)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolveResponse{
		SubmissionID: sub.ID.String(),
		Status:       string(sub.Status),
		DecidedAt:    sub.DecidedAt,
	})
}
