package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"proofpals/internal/crypto/ringsig"
	"proofpals/internal/ring/models"
	id "proofpals/pkg/domain"
	dErrors "proofpals/pkg/domain-errors"
)

type stubRegistry struct {
	ring *models.Ring
	err  error
}

func (s *stubRegistry) CreateRing(_ context.Context, members []ringsig.PublicKey) (*models.Ring, error) {
	if s.err != nil {
		return nil, s.err
	}
	return models.NewRing(id.RingID(uuid.New()), members, time.Now())
}

func (s *stubRegistry) GetRing(_ context.Context, _ id.RingID) (*models.Ring, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ring, nil
}

type stubEnroller struct {
	ring      *models.Ring
	err       error
	reviewers []id.ReviewerID
}

func (s *stubEnroller) EnrollRing(_ context.Context, reviewers []id.ReviewerID) (*models.Ring, error) {
	s.reviewers = reviewers
	if s.err != nil {
		return nil, s.err
	}
	return s.ring, nil
}

func memberKeys(t *testing.T, n int) ([]string, []ringsig.PublicKey) {
	t.Helper()
	hexKeys := make([]string, n)
	keys := make([]ringsig.PublicKey, n)
	for i := range n {
		_, pub, err := ringsig.GenerateKey(nil)
		if err != nil {
			t.Fatal(err)
		}
		keys[i] = pub
		hexKeys[i] = hex.EncodeToString(keys[i])
	}
	return hexKeys, keys
}

func newRouter(registry Registry, enroller Enroller) http.Handler {
	r := chi.NewRouter()
	New(registry, enroller, nil).Register(r)
	return r
}

func TestCreateRing(t *testing.T) {
	hexKeys, _ := memberKeys(t, 3)
	router := newRouter(&stubRegistry{}, &stubEnroller{})

	body, _ := json.Marshal(map[string]any{"member_keys": hexKeys})
	req := httptest.NewRequest(http.MethodPost, "/rings", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	got := resp["member_keys"].([]any)
	if len(got) != 3 {
		t.Fatalf("member_keys = %d, want 3", len(got))
	}
}

func TestCreateRingRejectsNonHex(t *testing.T) {
	router := newRouter(&stubRegistry{}, &stubEnroller{})

	body := `{"member_keys":["zzzz"]}`
	req := httptest.NewRequest(http.MethodPost, "/rings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateRingTooSmall(t *testing.T) {
	router := newRouter(&stubRegistry{}, &stubEnroller{})

	hexKeys, _ := memberKeys(t, 1)
	body, _ := json.Marshal(map[string]any{"member_keys": hexKeys})
	req := httptest.NewRequest(http.MethodPost, "/rings", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestEnrollRing(t *testing.T) {
	_, keys := memberKeys(t, 2)
	ring, err := models.NewRing(id.RingID(uuid.New()), keys, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	enroller := &stubEnroller{ring: ring}
	router := newRouter(&stubRegistry{}, enroller)

	reviewers := []string{uuid.NewString(), uuid.NewString()}
	body, _ := json.Marshal(map[string]any{"reviewer_ids": reviewers})
	req := httptest.NewRequest(http.MethodPost, "/rings/enroll", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body)
	}
	if len(enroller.reviewers) != 2 {
		t.Fatalf("reviewers forwarded = %d, want 2", len(enroller.reviewers))
	}
}

func TestEnrollRingRejectsBadReviewerID(t *testing.T) {
	router := newRouter(&stubRegistry{}, &stubEnroller{})

	body := `{"reviewer_ids":["not-a-uuid"]}`
	req := httptest.NewRequest(http.MethodPost, "/rings/enroll", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetRingNotFound(t *testing.T) {
	router := newRouter(&stubRegistry{err: dErrors.New(dErrors.CodeNotFound, "ring not found")}, &stubEnroller{})

	req := httptest.NewRequest(http.MethodGet, "/rings/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
