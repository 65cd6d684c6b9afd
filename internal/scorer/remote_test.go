package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRemoteTestScorer(t *testing.T, handler http.HandlerFunc) *RemoteScorer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRemoteScorer("external", srv.URL, "engine-key")
}

func TestRemoteScorer_Success(t *testing.T) {
	var gotReq remoteScoreRequest
	var gotAuth string

	s := newRemoteTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(remoteScoreResponse{Score: 0.7, Category: "injection"})
	})

	res, err := s.Score(context.Background(), Input{Prompt: "do the thing", Capability: "invoke_tool"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0.7 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.7, got %s %v", res.Category, res.Score)
	}
	if gotReq.Prompt != "do the thing" || gotReq.Capability != "invoke_tool" {
		t.Errorf("engine should receive prompt and capability, got %+v", gotReq)
	}
	if gotAuth != "Bearer engine-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestRemoteScorer_EmptyCategoryDefaultsToBenign(t *testing.T) {
	s := newRemoteTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteScoreResponse{Score: 0.05})
	})

	res, err := s.Score(context.Background(), Input{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Category != CategoryBenign {
		t.Errorf("expected benign, got %s", res.Category)
	}
}

func TestRemoteScorer_Non200IsError(t *testing.T) {
	s := newRemoteTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	})

	if _, err := s.Score(context.Background(), Input{Prompt: "x"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestRemoteScorer_UnknownCategoryIsError(t *testing.T) {
	s := newRemoteTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteScoreResponse{Score: 0.5, Category: "sketchy"})
	})

	if _, err := s.Score(context.Background(), Input{Prompt: "x"}); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestRemoteScorer_OutOfRangeScoreIsError(t *testing.T) {
	s := newRemoteTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteScoreResponse{Score: 42})
	})

	if _, err := s.Score(context.Background(), Input{Prompt: "x"}); err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}

func TestRemoteScorer_UnreachableEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := NewRemoteScorer("gone", url, "")
	if _, err := s.Score(context.Background(), Input{Prompt: "x"}); err == nil {
		t.Fatal("expected error for unreachable engine")
	}
}
