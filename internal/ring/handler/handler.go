// Package handler exposes the admin ring registry endpoints.
package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofpals/internal/crypto/ringsig"
	"proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/httputil"
)

// Registry is the ring service surface the handler needs.
type Registry interface {
	CreateRing(ctx context.Context, members []ringsig.PublicKey) (*models.Ring, error)
	GetRing(ctx context.Context, ringID id.RingID) (*models.Ring, error)
}

// Enroller creates a ring with server-held key shares for named reviewers.
type Enroller interface {
	EnrollRing(ctx context.Context, reviewers []id.ReviewerID) (*models.Ring, error)
}

type Handler struct {
	registry Registry
	enroller Enroller
	logger   *slog.Logger
}

func New(registry Registry, enroller Enroller, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, enroller: enroller, logger: logger}
}

// Register mounts the ring routes. Callers gate them behind admin auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/rings", h.createRing)
	r.Post("/rings/enroll", h.enrollRing)
	r.Get("/rings/{ringID}", h.getRing)
}

type createRingRequest struct {
	MemberKeys []string `json:"member_keys"`
}

type ringResponse struct {
	ID         string    `json:"id"`
	MemberKeys []string  `json:"member_keys"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRingResponse(ring *models.Ring) ringResponse {
	return ringResponse{
		ID:         ring.ID.String(),
		MemberKeys: ring.MemberHex(),
		CreatedAt:  ring.CreatedAt,
	}
}

func (h *Handler) createRing(w http.ResponseWriter, r *http.Request) {
	var req createRingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	members := make([]ringsig.PublicKey, len(req.MemberKeys))
	for i, raw := range req.MemberKeys {
		key, err := hex.DecodeString(raw)
		if err != nil {
			httputil.WriteError(w, h.logger, dErrors.New(dErrors.CodeInvalidRing, "member key is not hex"))
			return
		}
		members[i] = key
	}

	ring, err := h.registry.CreateRing(r.Context(), members)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRingResponse(ring))
}

type enrollRingRequest struct {
	ReviewerIDs []string `json:"reviewer_ids"`
}

func (h *Handler) enrollRing(w http.ResponseWriter, r *http.Request) {
	var req enrollRingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	reviewers := make([]id.ReviewerID, len(req.ReviewerIDs))
	for i, raw := range req.ReviewerIDs {
		reviewer, err := id.ParseReviewerID(raw)
		if err != nil {
			httputil.WriteError(w, h.logger, err)
			return
		}
		reviewers[i] = reviewer
	}

	ring, err := h.enroller.EnrollRing(r.Context(), reviewers)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRingResponse(ring))
}

func (h *Handler) getRing(w http.ResponseWriter, r *http.Request) {
	ringID, err := id.ParseRingID(chi.URLParam(r, "ringID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	ring, err := h.registry.GetRing(r.Context(), ringID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRingResponse(ring))
}
