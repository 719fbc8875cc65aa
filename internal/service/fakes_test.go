package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// ============================================================
// fakeStore: in-memory port.Store
// ============================================================

type fakeStore struct {
	mu            sync.Mutex
	sessions      map[string]*domain.Session
	order         []string
	messages      map[string][]domain.Message
	leads         map[string]*domain.Lead // by session id
	notifications []domain.NotificationRecord

	createCalls int
	createErr   error
	appendErr   error
	saveErr     error
	clock       time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.Message),
		leads:    make(map[string]*domain.Lead),
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateSession(_ context.Context, visitorID string, meta domain.SessionMetadata) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := fmt.Sprintf("sess-%d", len(f.order)+1)
	s := &domain.Session{ID: id, VisitorID: visitorID, CreatedAt: f.tick(), Status: domain.SessionActive, Metadata: meta}
	f.sessions[id] = s
	f.order = append(f.order, id)
	return s, nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListSessions(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.sessions[f.order[i]]
		if filter.Range.Contains(s.CreatedAt) {
			out = append(out, *s)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[sessionID]...), nil
}

func (f *fakeStore) CountMessages(_ context.Context, ids []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if n := len(f.messages[id]); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}
	msg := domain.Message{
		ID:        fmt.Sprintf("msg-%03d", len(f.messages[sessionID])+1),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: f.tick(),
	}
	f.messages[sessionID] = append(f.messages[sessionID], msg)
	return &msg, nil
}

func (f *fakeStore) SaveLead(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *lead
	f.leads[lead.SessionID] = &cp
	return nil
}

func (f *fakeStore) GetLeadBySession(_ context.Context, sessionID string) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) ListLeads(_ context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Lead
	for _, l := range f.leads {
		if !filter.Range.Contains(l.CreatedAt) {
			continue
		}
		if filter.Tier != "" && l.Status != filter.Tier {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) RecordNotification(_ context.Context, rec *domain.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.LeadID == rec.LeadID && n.Snapshot == rec.Snapshot && n.Kind == rec.Kind {
			return nil
		}
	}
	f.notifications = append(f.notifications, *rec)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, leadID string) ([]domain.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.NotificationRecord
	for _, n := range f.notifications {
		if n.LeadID == leadID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// ============================================================
// fakeReply: scripted port.ReplyGenerator
// ============================================================

type fakeReply struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{}
	calls    int
	lastSeen []domain.Message
}

func (f *fakeReply) GenerateReply(ctx context.Context, transcript []domain.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastSeen = append([]domain.Message(nil), transcript...)
	block, reply, err := f.block, f.reply, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

// ============================================================
// fakeSender: recording port.EmailSender
// ============================================================

type fakeSender struct {
	mu     sync.Mutex
	sent   []domain.OutboundEmail
	failTo map[string]bool
}

func (f *fakeSender) Send(_ context.Context, email *domain.OutboundEmail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[email.To] {
		return "", errors.New("provider rejected message")
	}
	f.sent = append(f.sent, *email)
	return fmt.Sprintf("re_%d", len(f.sent)), nil
}

func (f *fakeSender) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, e := range f.sent {
		out = append(out, e.Subject)
	}
	return out
}
