// Package openai generates assistant replies with the OpenAI chat API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/resilience"
)

var tracer = otel.Tracer("openai")

// ChatClient is the subset of *goopenai.Client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// ReplyGenerator implements port.ReplyGenerator on a chat completion model.
type ReplyGenerator struct {
	client       ChatClient
	model        string
	systemPrompt string
	maxTokens    int
	cb           *gobreaker.CircuitBreaker
	cfg          resilience.Config
	bulkhead     *resilience.Bulkhead
}

// New builds a generator backed by the official API.
func New(apiKey, model, systemPrompt string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ReplyGenerator {
	return NewWithClient(goopenai.NewClient(apiKey), model, systemPrompt, cb, cfg)
}

// NewWithClient builds a generator on any ChatClient.
func NewWithClient(client ChatClient, model, systemPrompt string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ReplyGenerator {
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &ReplyGenerator{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    400,
		cb:           cb,
		cfg:          cfg,
		bulkhead:     resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

// GenerateReply maps the transcript to chat messages, prefixed by the system
// prompt, and returns the first choice.
func (g *ReplyGenerator) GenerateReply(ctx context.Context, transcript []domain.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAI.GenerateReply")
	defer span.End()
	span.SetAttributes(
		attribute.String("openai.model", g.model),
		attribute.Int("transcript.length", len(transcript)),
	)

	if err := g.bulkhead.Acquire(ctx); err != nil {
		return "", &domain.ErrGeneration{Err: err}
	}
	defer g.bulkhead.Release()

	req := goopenai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages:  g.buildMessages(transcript),
	}

	reply, err := resilience.Execute(ctx, g.cb, g.cfg, func() (string, error) {
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *goopenai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
				apiErr.HTTPStatusCode != 429 {
				return "", resilience.Permanent(err)
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai returned no choices")
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return "", fmt.Errorf("openai returned an empty reply")
		}
		span.SetAttributes(attribute.Int("openai.tokens", resp.Usage.TotalTokens))
		return content, nil
	})
	if err != nil {
		return "", &domain.ErrGeneration{Err: &domain.ErrExternalService{Service: "openai", Err: err}}
	}
	return reply, nil
}

func (g *ReplyGenerator) buildMessages(transcript []domain.Message) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(transcript)+1)
	if g.systemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: g.systemPrompt})
	}
	for _, m := range transcript {
		role := goopenai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		case domain.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return msgs
}
