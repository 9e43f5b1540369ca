package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"proofpals/pkg/platform/audit"
	"proofpals/pkg/platform/audit/store/memory"
)

func seededLog(t *testing.T, n int) *memory.Store {
	t.Helper()
	store := memory.New()
	for range n {
		_, err := store.Append(context.Background(), audit.Event{
			ID:     uuid.New(),
			Action: audit.EventVoteAccepted,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newRouter(log audit.Log) http.Handler {
	r := chi.NewRouter()
	New(log, nil).Register(r)
	return r
}

func TestListReturnsChainedEntries(t *testing.T) {
	router := newRouter(seededLog(t, 3))

	req := httptest.NewRequest(http.MethodGet, "/audit-log", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var entries []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0]["seq"].(float64) != 1 {
		t.Fatalf("first seq = %v, want 1", entries[0]["seq"])
	}
	if entries[0]["event"] == nil {
		t.Fatal("entry payload missing")
	}
}

func TestListRange(t *testing.T) {
	router := newRouter(seededLog(t, 5))

	req := httptest.NewRequest(http.MethodGet, "/audit-log?from=2&to=4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var entries []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
}

func TestListRejectsBadSeq(t *testing.T) {
	router := newRouter(seededLog(t, 1))

	req := httptest.NewRequest(http.MethodGet, "/audit-log?from=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	router := newRouter(seededLog(t, 4))

	req := httptest.NewRequest(http.MethodGet, "/audit-log/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["valid"] != true {
		t.Fatalf("valid = %v, want true", resp["valid"])
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	store := seededLog(t, 4)
	store.Tamper(2, []byte(`{"action":"forged"}`))
	router := newRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit-log/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["valid"] != false {
		t.Fatalf("valid = %v, want false", resp["valid"])
	}
}
