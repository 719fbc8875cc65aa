// Package client holds HTTP clients for services the chat backend calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// agentMessage is one transcript turn on the wire.
type agentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// agentRequest is the body of POST /v1/chat on the agent service.
type agentRequest struct {
	SessionID    string         `json:"session_id,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Messages     []agentMessage `json:"messages"`
}

type agentResponse struct {
	Reply string `json:"reply"`
}

// AgentReplyClient asks an external agent service for the next assistant
// message. It implements port.ReplyGenerator.
//
//	Request:  {"session_id": "...", "system_prompt": "...", "messages": [{"role": "user", "content": "..."}]}
//	Response: {"reply": "..."}
type AgentReplyClient struct {
	httpClient   *http.Client
	baseURL      string
	systemPrompt string
	cb           *gobreaker.CircuitBreaker
	cfg          resilience.Config
	bulkhead     *resilience.Bulkhead
}

// NewAgentReplyClient creates the client. baseURL has no trailing /v1/chat.
func NewAgentReplyClient(httpClient *http.Client, baseURL, systemPrompt string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AgentReplyClient {
	return &AgentReplyClient{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		systemPrompt: systemPrompt,
		cb:           cb,
		cfg:          cfg,
		bulkhead:     resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

// GenerateReply sends the full transcript and returns the agent's reply.
func (c *AgentReplyClient) GenerateReply(ctx context.Context, transcript []domain.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "AgentReplyClient.GenerateReply")
	defer span.End()
	span.SetAttributes(attribute.Int("transcript.length", len(transcript)))

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return "", &domain.ErrGeneration{Err: err}
	}
	defer c.bulkhead.Release()

	req := agentRequest{SystemPrompt: c.systemPrompt, Messages: make([]agentMessage, 0, len(transcript))}
	for _, m := range transcript {
		if req.SessionID == "" {
			req.SessionID = m.SessionID
		}
		req.Messages = append(req.Messages, agentMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", &domain.ErrGeneration{Err: fmt.Errorf("marshal chat request: %w", err)}
	}

	reply, err := resilience.Execute(ctx, c.cb, c.cfg, func() (string, error) {
		url := fmt.Sprintf("%s/v1/chat", c.baseURL)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", resilience.Permanent(fmt.Errorf("create http request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("http call to agent: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("agent /v1/chat returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return "", resilience.Permanent(statusErr)
			}
			return "", statusErr
		}

		var out agentResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode agent response: %w", err)
		}
		if strings.TrimSpace(out.Reply) == "" {
			return "", fmt.Errorf("agent returned an empty reply")
		}
		return out.Reply, nil
	})
	if err != nil {
		return "", &domain.ErrGeneration{Err: &domain.ErrExternalService{Service: "chat-agent", Err: err}}
	}
	return reply, nil
}
