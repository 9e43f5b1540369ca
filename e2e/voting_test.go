// Package e2e exercises the full HTTP surface against in-memory stores:
// enrollment, credential issuance, client-side signing, voting, escalation
// resolution, and audit verification.
package e2e

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credhandler "proofpals/internal/credential/handler"
	credservice "proofpals/internal/credential/service"
	credstore "proofpals/internal/credential/store"
	"proofpals/internal/crypto/ringsig"
	escalationhandler "proofpals/internal/escalation/handler"
	escalationservice "proofpals/internal/escalation/service"
	ledgerstore "proofpals/internal/ledger/store"
	ringhandler "proofpals/internal/ring/handler"
	ringservice "proofpals/internal/ring/service"
	ringstore "proofpals/internal/ring/store"
	submissionhandler "proofpals/internal/submission/handler"
	submissionmodels "proofpals/internal/submission/models"
	submissionservice "proofpals/internal/submission/service"
	substore "proofpals/internal/submission/store"
	transport "proofpals/internal/transport/http"
	id "proofpals/pkg/domain"
	audithandler "proofpals/pkg/platform/audit/handler"
	auditmemory "proofpals/pkg/platform/audit/store/memory"
	"proofpals/pkg/platform/audit/publisher"
	"proofpals/pkg/platform/middleware"
)

type engine struct {
	router http.Handler
	auth   *middleware.Auth
}

func newEngine(t *testing.T, rule submissionmodels.ConsensusRule) *engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditLog := auditmemory.New()
	emitter := publisher.New(auditLog, publisher.WithLogger(logger))
	t.Cleanup(emitter.Close)

	rings := ringservice.New(ringstore.NewInMemory(), emitter)
	subs := substore.NewInMemory()
	issuer := credservice.New(credstore.NewInMemory(), rings, subs, emitter, "e2e-pepper", time.Hour)
	aggregator := submissionservice.New(subs, rings, ledgerstore.NewInMemory(), issuer, emitter, rule, logger)
	resolver := escalationservice.New(subs, emitter)

	auth := middleware.NewAuth([]byte("e2e-signing-key"), "")
	router := transport.New(transport.Deps{
		Auth:   auth,
		Logger: logger,
		Reviewer: []transport.Registrar{
			credhandler.New(issuer, logger),
			submissionhandler.New(aggregator, logger),
		},
		Admin: []transport.Registrar{
			ringhandler.New(rings, issuer, logger),
			submissionhandler.NewAdmin(aggregator, logger),
			escalationhandler.New(resolver, logger),
			audithandler.New(auditLog, logger),
		},
	})
	return &engine{router: router, auth: auth}
}

func (e *engine) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 && json.Valid(rec.Body.Bytes()) {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec.Code, resp
}

func (e *engine) reviewerToken(t *testing.T, reviewer string) string {
	t.Helper()
	token, err := e.auth.MintToken(reviewer, middleware.RoleReviewer, time.Minute)
	require.NoError(t, err)
	return token
}

func (e *engine) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.auth.MintToken("admin-e2e", middleware.RoleAdmin, time.Minute)
	require.NoError(t, err)
	return token
}

// signBallot reproduces what a reviewer client does with an issued
// credential: rebuild the key from the share and sign the canonical
// payload over the ring keys the issuer returned.
func signBallot(t *testing.T, issued map[string]any, submissionID string, kind submissionmodels.VoteKind) string {
	t.Helper()
	share, err := hex.DecodeString(issued["share"].(string))
	require.NoError(t, err)
	key, err := ringsig.NewPrivateKey(share)
	require.NoError(t, err)

	rawKeys := issued["ring_keys"].([]any)
	ring := make([]ringsig.PublicKey, len(rawKeys))
	for i, raw := range rawKeys {
		member, err := hex.DecodeString(raw.(string))
		require.NoError(t, err)
		ring[i] = member
	}

	subID, err := id.ParseSubmissionID(submissionID)
	require.NoError(t, err)
	ringID, err := id.ParseRingID(issued["ring_id"].(string))
	require.NoError(t, err)

	sig, err := ringsig.Sign(key, ring, submissionmodels.VotePayload(subID, kind, ringID))
	require.NoError(t, err)
	return `{"vote_kind":"` + string(kind) + `","signature":"` + hex.EncodeToString(sig.Bytes()) +
		`","key_image":"` + hex.EncodeToString(sig.KeyImage) + `"}`
}

func (e *engine) setup(t *testing.T, reviewerCount int) (reviewers []string, submissionID string) {
	t.Helper()
	admin := e.adminToken(t)

	reviewers = make([]string, reviewerCount)
	for i := range reviewers {
		reviewers[i] = uuid.NewString()
	}
	body, _ := json.Marshal(map[string]any{"reviewer_ids": reviewers})
	code, ring := e.do(t, http.MethodPost, "/api/v1/admin/rings/enroll", admin, string(body))
	require.Equal(t, http.StatusCreated, code)

	code, sub := e.do(t, http.MethodPost, "/api/v1/admin/submissions", admin,
		`{"content_ref":"ipfs://bafy-novel-ch1","genre":"fiction","ring_id":"`+ring["id"].(string)+`"}`)
	require.Equal(t, http.StatusCreated, code)
	return reviewers, sub["id"].(string)
}

func (e *engine) vote(t *testing.T, reviewer, submissionID string, kind submissionmodels.VoteKind) (int, map[string]any) {
	t.Helper()
	token := e.reviewerToken(t, reviewer)
	code, issued := e.do(t, http.MethodPost, "/api/v1/credentials", token,
		`{"submission_id":"`+submissionID+`"}`)
	require.Equal(t, http.StatusCreated, code, "issue credential: %v", issued)

	ballot := signBallot(t, issued, submissionID, kind)
	return e.do(t, http.MethodPost, "/api/v1/submissions/"+submissionID+"/votes", token, ballot)
}

func TestApprovalReachesQuorum(t *testing.T) {
	e := newEngine(t, submissionmodels.ConsensusRule{Quorum: 3, Margin: 1, FlagEscalates: true})
	reviewers, subID := e.setup(t, 5)

	for i := range 2 {
		code, resp := e.vote(t, reviewers[i], subID, submissionmodels.VoteApprove)
		require.Equal(t, http.StatusAccepted, code, "%v", resp)
		assert.Equal(t, "pending", resp["status"])
	}

	// Issue the straggler's credential while voting is still open; its
	// ballot will arrive after the quorum closes the submission.
	lateToken := e.reviewerToken(t, reviewers[3])
	code, lateCred := e.do(t, http.MethodPost, "/api/v1/credentials", lateToken,
		`{"submission_id":"`+subID+`"}`)
	require.Equal(t, http.StatusCreated, code)

	code, resp := e.vote(t, reviewers[2], subID, submissionmodels.VoteApprove)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "approved", resp["status"])

	ballot := signBallot(t, lateCred, subID, submissionmodels.VoteApprove)
	code, resp = e.do(t, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", lateToken, ballot)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "submission_closed", resp["error"])

	code, resp = e.do(t, http.MethodGet, "/api/v1/submissions/"+subID, e.reviewerToken(t, reviewers[0]), "")
	require.Equal(t, http.StatusOK, code)
	tally := resp["tally"].(map[string]any)
	assert.Equal(t, float64(3), tally["approve"])
}

func TestDoubleVoteSameCredential(t *testing.T) {
	e := newEngine(t, submissionmodels.ConsensusRule{Quorum: 3, Margin: 1, FlagEscalates: true})
	reviewers, subID := e.setup(t, 3)

	token := e.reviewerToken(t, reviewers[0])
	code, issued := e.do(t, http.MethodPost, "/api/v1/credentials", token,
		`{"submission_id":"`+subID+`"}`)
	require.Equal(t, http.StatusCreated, code)

	ballot := signBallot(t, issued, subID, submissionmodels.VoteApprove)
	code, _ = e.do(t, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", token, ballot)
	require.Equal(t, http.StatusAccepted, code)

	// Same key image, different kind: the ledger, not the signature check,
	// must stop it, so sign a fresh valid ballot.
	ballot = signBallot(t, issued, subID, submissionmodels.VoteReject)
	code, resp := e.do(t, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", token, ballot)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_vote", resp["error"])

	// The spent credential also blocks re-issuance until expiry frees it,
	// but consumption marking already released the pair.
	code, _ = e.do(t, http.MethodPost, "/api/v1/credentials", token, `{"submission_id":"`+subID+`"}`)
	assert.Equal(t, http.StatusCreated, code)
}

func TestFlagEscalatesAndAdminResolves(t *testing.T) {
	e := newEngine(t, submissionmodels.ConsensusRule{Quorum: 3, Margin: 1, FlagEscalates: true})
	reviewers, subID := e.setup(t, 3)

	code, resp := e.vote(t, reviewers[0], subID, submissionmodels.VoteFlag)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "escalated", resp["status"])

	admin := e.adminToken(t)
	code, _ = e.do(t, http.MethodGet, "/api/v1/admin/escalations", admin, "")
	require.Equal(t, http.StatusOK, code)

	code, resolved := e.do(t, http.MethodPost, "/api/v1/admin/escalations/"+subID+"/resolve", admin,
		`{"resolution":"reject","rationale":"source could not be verified"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "resolved_rejected", resolved["status"])

	code, resp = e.do(t, http.MethodPost, "/api/v1/admin/escalations/"+subID+"/resolve", admin,
		`{"resolution":"approve"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_resolved", resp["error"])
}

func TestAuditChainCoversTheRun(t *testing.T) {
	e := newEngine(t, submissionmodels.ConsensusRule{Quorum: 1, Margin: 1, FlagEscalates: true})
	reviewers, subID := e.setup(t, 2)

	code, _ := e.vote(t, reviewers[0], subID, submissionmodels.VoteApprove)
	require.Equal(t, http.StatusAccepted, code)

	admin := e.adminToken(t)
	code, verify := e.do(t, http.MethodGet, "/api/v1/admin/audit-log/verify", admin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, verify["valid"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-log", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	actions := make(map[string]bool)
	for _, entry := range entries {
		event := entry["event"].(map[string]any)
		actions[event["action"].(string)] = true
	}
	assert.True(t, actions["ring_created"])
	assert.True(t, actions["credential_issued"])
	assert.True(t, actions["vote_accepted"])
	assert.True(t, actions["submission_status_changed"])
}

func TestRoleGates(t *testing.T) {
	e := newEngine(t, submissionmodels.ConsensusRule{Quorum: 3, Margin: 1})

	code, _ := e.do(t, http.MethodGet, "/api/v1/admin/escalations", "", "")
	assert.Equal(t, http.StatusForbidden, code, "no token")

	reviewer := e.reviewerToken(t, uuid.NewString())
	code, _ = e.do(t, http.MethodGet, "/api/v1/admin/escalations", reviewer, "")
	assert.Equal(t, http.StatusForbidden, code, "reviewer cannot reach admin routes")

	code, _ = e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
}
