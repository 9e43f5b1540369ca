// Package handler exposes submission lifecycle and voting endpoints.
package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofpals/internal/submission/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/httputil"
)

// Aggregator is the submission service surface the handler needs.
type Aggregator interface {
	CreateSubmission(ctx context.Context, contentRef, genre string, ringID id.RingID) (*models.Submission, error)
	GetSubmission(ctx context.Context, subID id.SubmissionID) (*models.Submission, error)
	ListVotes(ctx context.Context, subID id.SubmissionID) ([]*models.Vote, error)
	CastVote(ctx context.Context, subID id.SubmissionID, kind models.VoteKind, signature, keyImage []byte) (*models.Submission, error)
}

type Handler struct {
	aggregator Aggregator
	logger     *slog.Logger
}

func New(aggregator Aggregator, logger *slog.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Register mounts the submission routes. Callers gate them behind
// reviewer auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/submissions/{submissionID}", h.get)
	r.Get("/submissions/{submissionID}/votes", h.listVotes)
	r.Post("/submissions/{submissionID}/votes", h.castVote)
}

// AdminHandler exposes submission creation on the admin surface. Reviewers
// read and vote; opening a submission for review is an administrative act.
type AdminHandler struct {
	*Handler
}

func NewAdmin(aggregator Aggregator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{Handler: New(aggregator, logger)}
}

// Register mounts the admin submission routes.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/submissions", h.create)
}

type createRequest struct {
	ContentRef string `json:"content_ref"`
	Genre      string `json:"genre"`
	RingID     string `json:"ring_id"`
}

type submissionResponse struct {
	ID         string       `json:"id"`
	ContentRef string       `json:"content_ref"`
	Genre      string       `json:"genre,omitempty"`
	RingID     string       `json:"ring_id"`
	Status     string       `json:"status"`
	Tally      models.Tally `json:"tally"`
	CreatedAt  time.Time    `json:"created_at"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
}

func toSubmissionResponse(sub *models.Submission) submissionResponse {
	return submissionResponse{
		ID:         sub.ID.String(),
		ContentRef: sub.ContentRef,
		Genre:      sub.Genre,
		RingID:     sub.RingID.String(),
		Status:     string(sub.Status),
		Tally:      sub.Tally,
		CreatedAt:  sub.CreatedAt,
		DecidedAt:  sub.DecidedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	ringID, err := id.ParseRingID(req.RingID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	sub, err := h.aggregator.CreateSubmission(r.Context(), req.ContentRef, req.Genre, ringID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	sub, err := h.aggregator.GetSubmission(r.Context(), subID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

type voteResponse struct {
	Kind       string    `json:"kind"`
	KeyImage   string    `json:"key_image"`
	ReceivedAt time.Time `json:"received_at"`
}

func (h *Handler) listVotes(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	votes, err := h.aggregator.ListVotes(r.Context(), subID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	out := make([]voteResponse, len(votes))
	for i, vote := range votes {
		out[i] = voteResponse{
			Kind:       string(vote.Kind),
			KeyImage:   models.KeyImageHex(vote.KeyImage),
			ReceivedAt: vote.ReceivedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type castVoteRequest struct {
	VoteKind  string `json:"vote_kind"`
	Signature string `json:"signature"`
	KeyImage  string `json:"key_image"`
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	var req castVoteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	kind, err := models.ParseVoteKind(req.VoteKind)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	signature, err := hex.DecodeString(req.Signature)
	if err != nil {
		httputil.WriteError(w, h.logger, dErrors.New(dErrors.CodeBadRequest, "signature is not hex"))
		return
	}
	keyImage, err := hex.DecodeString(req.KeyImage)
	if err != nil {
		httputil.WriteError(w, h.logger, dErrors.New(dErrors.CodeBadRequest, "key_image is not hex"))
		return
	}

	sub, err := h.aggregator.CastVote(r.Context(), subID, kind, signature, keyImage)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toSubmissionResponse(sub))
}
