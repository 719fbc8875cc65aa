package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/cache"
	"github.com/boddenberg/leadchat-go/internal/infra/idgen"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/port"
)

// ConversationState is where a conversation is in its lifecycle.
type ConversationState string

const (
	StateIdle          ConversationState = "idle"
	StateGreeting      ConversationState = "greeting"
	StateAwaitingInput ConversationState = "awaiting-input"
	StateSending       ConversationState = "sending"
	StateClosed        ConversationState = "closed"
)

// Shown to the visitor, never persisted.
const (
	GreetingMessage = "Hi there! 👋 Have a question about our services or pricing? I'm happy to help."
	FallbackReply   = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
)

const greetingID = "greeting"

var errEmptyReply = errors.New("empty reply")

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
	datePattern  = regexp.MustCompile(`\d{4}[.\-]\d{1,2}[.\-]\d{1,2}|\d{1,2}[.\-]\d{1,2}[.\-]\d{4}`)
	phoneGroups  = regexp.MustCompile(`[\s().\-]+`)
)

// Digit bounds for a phone number, country code included.
const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// captureTimeout bounds the lead capture that follows a chat message.
const captureTimeout = 30 * time.Second

// ContactCapturer receives contact details spotted in visitor messages.
type ContactCapturer interface {
	CaptureContact(ctx context.Context, sessionID string, attrs domain.LeadAttributes) error
}

type conversation struct {
	mu       sync.Mutex
	state    ConversationState
	messages []domain.Message
}

// Conversations drives the chat for every open session. Live
// conversations are kept in a TTL cache; an expired one is rebuilt from
// the store on next use.
type Conversations struct {
	store    port.SessionStore
	reply    port.ReplyGenerator
	contacts ContactCapturer
	limiter  *RateLimiter
	live     *cache.InMemory[*conversation]
	metrics  *observability.Metrics
	logger   *zap.Logger

	captures sync.WaitGroup
}

// NewConversations creates the conversation controller. contacts may be nil.
func NewConversations(
	store port.SessionStore,
	reply port.ReplyGenerator,
	contacts ContactCapturer,
	limiter *RateLimiter,
	ttl time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Conversations {
	return &Conversations{
		store:    store,
		reply:    reply,
		contacts: contacts,
		limiter:  limiter,
		live:     cache.New[*conversation](ttl),
		metrics:  metrics,
		logger:   logger,
	}
}

// Stop waits for pending contact captures and releases background resources.
func (c *Conversations) Stop() {
	c.captures.Wait()
	c.live.Stop()
}

// Open loads (or reloads) a conversation. Returning visitors see their
// history; the greeting is only shown when the transcript is empty.
func (c *Conversations) Open(ctx context.Context, sessionID string) (*domain.ConversationView, error) {
	ctx, span := tracer.Start(ctx, "Conversations.Open")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	conv, err := c.conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	if conv.state == StateClosed {
		if err := c.load(ctx, sessionID, conv); err != nil {
			return nil, err
		}
	}
	return view(sessionID, conv), nil
}

// Send submits a visitor message and waits for the assistant's reply. A
// failed generation appends the fallback apology instead; either way the
// conversation ends up awaiting input again.
func (c *Conversations) Send(ctx context.Context, sessionID, text string) (*domain.ConversationView, error) {
	ctx, span := tracer.Start(ctx, "Conversations.Send")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "message is empty"}
	}
	if c.limiter != nil && !c.limiter.Allow(sessionID) {
		return nil, &domain.ErrRateLimited{Key: sessionID}
	}

	conv, err := c.conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	if conv.state == StateSending {
		conv.mu.Unlock()
		return nil, &domain.ErrSendInFlight{SessionID: sessionID}
	}
	if conv.state == StateClosed {
		if err := c.load(ctx, sessionID, conv); err != nil {
			conv.mu.Unlock()
			return nil, err
		}
	}
	conv.state = StateSending
	conv.mu.Unlock()

	defer func() {
		conv.mu.Lock()
		if conv.state == StateSending {
			conv.state = StateAwaitingInput
		}
		conv.mu.Unlock()
	}()

	userMsg := c.append(ctx, sessionID, conv, domain.RoleUser, text)
	c.metrics.IncrMessage(domain.RoleUser)

	conv.mu.Lock()
	transcript := append([]domain.Message(nil), conv.messages...)
	conv.mu.Unlock()

	start := time.Now()
	content, err := c.reply.GenerateReply(ctx, transcript)
	c.metrics.RecordDuration("generate_reply", time.Since(start))
	if err == nil && strings.TrimSpace(content) == "" {
		err = &domain.ErrGeneration{Err: errEmptyReply}
	}
	if err != nil {
		c.metrics.IncrReply("fallback")
		c.logger.Warn("reply generation failed, using fallback",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		content = FallbackReply
	} else {
		c.metrics.IncrReply("success")
	}

	c.append(ctx, sessionID, conv, domain.RoleAssistant, content)
	c.metrics.IncrMessage(domain.RoleAssistant)

	c.captureContactAsync(ctx, sessionID, userMsg.Content)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.state == StateSending {
		conv.state = StateAwaitingInput
	}
	return view(sessionID, conv), nil
}

// Close dismisses the widget. The transcript stays in the store and is
// reloaded on the next Open.
func (c *Conversations) Close(ctx context.Context, sessionID string) error {
	_, span := tracer.Start(ctx, "Conversations.Close")
	defer span.End()

	conv, ok := c.live.Get(sessionID)
	if !ok {
		return nil
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.state = StateClosed
	return nil
}

// State reports the live state of a session's conversation.
func (c *Conversations) State(sessionID string) ConversationState {
	conv, ok := c.live.Get(sessionID)
	if !ok {
		return StateIdle
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.state
}

// conversation returns the live conversation, loading history on first use.
func (c *Conversations) conversation(ctx context.Context, sessionID string) (*conversation, error) {
	conv, existed := c.live.GetOrCreate(sessionID, func() *conversation {
		return &conversation{state: StateIdle}
	})
	if existed {
		c.metrics.IncrCacheHit("conversation")
	} else {
		c.metrics.IncrCacheMiss("conversation")
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.state != StateIdle {
		return conv, nil
	}
	if _, err := c.store.GetSession(ctx, sessionID); err != nil {
		c.live.Delete(sessionID)
		return nil, err
	}
	if err := c.load(ctx, sessionID, conv); err != nil {
		c.live.Delete(sessionID)
		return nil, err
	}
	return conv, nil
}

// load replaces the in-memory transcript with the stored one. Caller holds conv.mu.
func (c *Conversations) load(ctx context.Context, sessionID string, conv *conversation) error {
	msgs, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	conv.messages = msgs
	if len(msgs) == 0 {
		conv.state = StateGreeting
	} else {
		conv.state = StateAwaitingInput
	}
	return nil
}

// append adds a message to the local transcript and persists it. A failed
// write keeps the local copy so the visitor's view stays intact.
func (c *Conversations) append(ctx context.Context, sessionID string, conv *conversation, role domain.Role, content string) domain.Message {
	msg, err := c.store.AppendMessage(ctx, sessionID, role, content)
	if err != nil {
		c.logger.Error("failed to persist message",
			zap.String("session_id", sessionID),
			zap.String("role", string(role)),
			zap.Error(err),
		)
		conv.mu.Lock()
		var prev time.Time
		if n := len(conv.messages); n > 0 {
			prev = conv.messages[n-1].CreatedAt
		}
		conv.mu.Unlock()

		at := idgen.NextTimestamp(prev, time.Now())
		msg = &domain.Message{
			ID:        idgen.NewULID(at),
			SessionID: sessionID,
			Role:      role,
			Content:   content,
			CreatedAt: at,
		}
	}

	conv.mu.Lock()
	conv.messages = append(conv.messages, *msg)
	conv.mu.Unlock()
	return *msg
}

// captureContactAsync hands contact details found in text to the lead
// pipeline without holding up the reply. The capture outlives the request.
func (c *Conversations) captureContactAsync(ctx context.Context, sessionID, text string) {
	if c.contacts == nil {
		return
	}
	attrs, ok := ExtractContact(text)
	if !ok {
		return
	}

	c.captures.Add(1)
	go func() {
		defer c.captures.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
		defer cancel()
		c.captureContact(ctx, sessionID, attrs)
	}()
}

func (c *Conversations) captureContact(ctx context.Context, sessionID string, attrs domain.LeadAttributes) {
	if err := c.contacts.CaptureContact(ctx, sessionID, attrs); err != nil {
		c.logger.Warn("failed to capture contact from chat",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// ExtractContact pulls the first email address and phone number out of a
// message.
func ExtractContact(text string) (domain.LeadAttributes, bool) {
	var attrs domain.LeadAttributes
	if email := emailPattern.FindString(text); email != "" {
		attrs.Email = strings.ToLower(email)
	}
	// Strip emails first so their digits are not read as a phone number.
	rest := emailPattern.ReplaceAllString(text, " ")
	for _, candidate := range phonePattern.FindAllString(rest, -1) {
		if phone := strings.TrimSpace(candidate); looksLikePhone(phone) {
			attrs.Phone = domain.Ptr(phone)
			break
		}
	}
	return attrs, attrs.Email != "" || attrs.Phone != nil
}

// looksLikePhone rejects dates, numeric ranges ("25000 - 50000") and plain
// amounts that the loose phone pattern also matches.
func looksLikePhone(s string) bool {
	digits := countDigits(s)
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return false
	}
	if datePattern.MatchString(s) {
		return false
	}
	groups := phoneGroups.Split(strings.Trim(strings.TrimPrefix(s, "+"), "()"), -1)
	if len(groups) == 2 && !strings.HasPrefix(s, "+") && strings.Contains(s, "-") {
		return false
	}
	return true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func view(sessionID string, conv *conversation) *domain.ConversationView {
	msgs := append([]domain.Message(nil), conv.messages...)
	if len(msgs) == 0 {
		msgs = append(msgs, domain.Message{
			ID:        greetingID,
			SessionID: sessionID,
			Role:      domain.RoleAssistant,
			Content:   GreetingMessage,
		})
	}
	return &domain.ConversationView{
		SessionID: sessionID,
		State:     string(conv.state),
		Messages:  msgs,
	}
}
