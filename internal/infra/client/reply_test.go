package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/client"
	"github.com/boddenberg/leadchat-go/internal/infra/resilience"
)

func newReplyClient(url string) *client.AgentReplyClient {
	return client.NewAgentReplyClient(http.DefaultClient, url, "be brief",
		resilience.NewCircuitBreaker("agent-test"),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 2},
	)
}

func TestAgentReplyClient_SendsTranscript(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "We build web apps."})
	}))
	defer srv.Close()

	transcript := []domain.Message{
		{SessionID: "sess-1", Role: domain.RoleUser, Content: "What do you build?"},
	}
	reply, err := newReplyClient(srv.URL).GenerateReply(context.Background(), transcript)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply != "We build web apps." {
		t.Errorf("unexpected reply %q", reply)
	}
	if got["session_id"] != "sess-1" || got["system_prompt"] != "be brief" {
		t.Errorf("unexpected request body %v", got)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestAgentReplyClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "ok"})
	}))
	defer srv.Close()

	reply, err := newReplyClient(srv.URL).GenerateReply(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if reply != "ok" || calls.Load() != 3 {
		t.Errorf("reply=%q calls=%d", reply, calls.Load())
	}
}

func TestAgentReplyClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newReplyClient(srv.URL).GenerateReply(context.Background(), nil)
	var genErr *domain.ErrGeneration
	if !errors.As(err, &genErr) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestAgentReplyClient_EmptyReplyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "  "})
	}))
	defer srv.Close()

	_, err := newReplyClient(srv.URL).GenerateReply(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty reply")
	}
}
