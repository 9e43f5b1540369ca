// Package handler exposes credential issuance to authenticated reviewers.
package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofpals/internal/credential/models"
	ringmodels "proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/httputil"
	"proofpals/pkg/requestcontext"
)

// Issuer is the credential service surface the handler needs.
type Issuer interface {
	Issue(ctx context.Context, reviewer id.ReviewerID, submissionID id.SubmissionID) (*models.Credential, *ringmodels.Ring, error)
}

type Handler struct {
	issuer Issuer
	logger *slog.Logger
}

func New(issuer Issuer, logger *slog.Logger) *Handler {
	return &Handler{issuer: issuer, logger: logger}
}

// Register mounts the credential routes. Callers gate them behind
// reviewer auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.issue)
}

type issueRequest struct {
	SubmissionID string `json:"submission_id"`
}

type issueResponse struct {
	CredentialID string    `json:"credential_id"`
	SubmissionID string    `json:"submission_id"`
	RingID       string    `json:"ring_id"`
	Share        string    `json:"share"`
	MemberIndex  int       `json:"member_index"`
	KeyImage     string    `json:"key_image"`
	RingKeys     []string  `json:"ring_keys"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// issue mints a one-time voting credential for the authenticated reviewer.
// The share is returned once and never retrievable again.
func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	reviewer, err := id.ParseReviewerID(requestcontext.ActorID(r.Context()))
	if err != nil {
		httputil.WriteError(w, h.logger, dErrors.New(dErrors.CodeForbidden, "token subject is not a reviewer id"))
		return
	}

	var req issueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	submissionID, err := id.ParseSubmissionID(req.SubmissionID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	cred, ring, err := h.issuer.Issue(r.Context(), reviewer, submissionID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{
		CredentialID: cred.ID.String(),
		SubmissionID: cred.SubmissionID.String(),
		RingID:       cred.RingID.String(),
		Share:        hex.EncodeToString(cred.Share),
		MemberIndex:  cred.MemberIndex,
		KeyImage:     hex.EncodeToString(cred.KeyImage),
		RingKeys:     ring.MemberHex(),
		ExpiresAt:    cred.ExpiresAt,
	})
}
