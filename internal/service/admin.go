package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/port"
)

const (
	bcryptCost      = 12
	adminSubject    = "admin"
	tokenIssuer     = "leadchat"
	defaultPageSize = 50
)

// AdminClaims are the claims carried by admin access tokens.
type AdminClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AdminService backs the read-only admin surface.
type AdminService struct {
	store        port.Store
	passwordHash []byte
	jwtSecret    []byte
	accessTTL    time.Duration
	logger       *zap.Logger
}

// NewAdminService creates the admin service. An empty password hash
// disables login.
func NewAdminService(store port.Store, passwordHash, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AdminService {
	return &AdminService{
		store:        store,
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		accessTTL:    accessTTL,
		logger:       logger,
	}
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", &domain.ErrValidation{Field: "password", Message: "must be at least 8 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ============================================================
// Login: POST /v1/admin/login
// ============================================================

func (s *AdminService) Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AdminLoginResponse, error) {
	_, span := tracer.Start(ctx, "AdminService.Login")
	defer span.End()

	if len(s.passwordHash) == 0 {
		return nil, &domain.ErrUnauthorized{Message: "admin login is disabled"}
	}
	if req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "required"}
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil {
		s.logger.Warn("admin login failed")
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	token, err := s.signAccessToken()
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("admin logged in")
	return &domain.AdminLoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
	}, nil
}

// ValidateToken is used by the admin middleware.
func (s *AdminService) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Type != "access" || claims.Subject != adminSubject {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

func (s *AdminService) signAccessToken() (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ============================================================
// Funnel: GET /v1/admin/funnel
// ============================================================

// Funnel aggregates sessions, conversations and leads created in r. Tiers
// are recomputed from the stored score so the thresholds live in TierOf.
func (s *AdminService) Funnel(ctx context.Context, r domain.TimeRange) (*domain.FunnelMetrics, error) {
	ctx, span := tracer.Start(ctx, "AdminService.Funnel")
	defer span.End()

	sessions, err := s.store.ListSessions(ctx, domain.SessionFilter{Range: r})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	counts, err := s.store.CountMessages(ctx, sessionIDs(sessions))
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	leads, err := s.store.ListLeads(ctx, domain.LeadFilter{Range: r})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	f := &domain.FunnelMetrics{Sessions: len(sessions), Leads: len(leads)}
	for _, sess := range sessions {
		if counts[sess.ID] > 0 {
			f.Conversations++
		}
	}

	var total int
	for _, l := range leads {
		total += l.QualificationScore
		switch TierOf(l.QualificationScore) {
		case domain.TierHighValue:
			f.HighValueLeads++
			f.QualifiedLeads++
		case domain.TierQualified:
			f.QualifiedLeads++
		}
	}
	if f.Sessions > 0 {
		f.ConversionRate = float64(f.Leads) / float64(f.Sessions)
	}
	if f.Leads > 0 {
		f.QualifiedRate = float64(f.QualifiedLeads) / float64(f.Leads)
		f.AverageScore = float64(total) / float64(f.Leads)
	}
	if !r.From.IsZero() {
		f.From = r.From.UTC().Format(time.RFC3339)
	}
	if !r.To.IsZero() {
		f.To = r.To.UTC().Format(time.RFC3339)
	}
	return f, nil
}

// ============================================================
// Sessions: GET /v1/admin/sessions
// ============================================================

// ListSessions lists sessions newest first with their message count and
// lead score. A tier filter keeps only sessions whose lead is in that tier.
func (s *AdminService) ListSessions(ctx context.Context, filter domain.SessionFilter) (*domain.ListResponse[domain.SessionSummary], error) {
	ctx, span := tracer.Start(ctx, "AdminService.ListSessions")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	query := domain.SessionFilter{Range: filter.Range, Limit: limit}
	if filter.Tier != "" {
		// The limit applies after the tier filter.
		query.Limit = 0
	}

	sessions, err := s.store.ListSessions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	leads, err := s.store.ListLeads(ctx, domain.LeadFilter{})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	bySession := make(map[string]domain.Lead, len(leads))
	for _, l := range leads {
		bySession[l.SessionID] = l
	}

	out := make([]domain.SessionSummary, 0, min(len(sessions), limit))
	for _, sess := range sessions {
		sum := domain.SessionSummary{Session: sess}
		if l, ok := bySession[sess.ID]; ok {
			score := l.QualificationScore
			sum.QualificationScore = &score
			sum.Status = TierOf(score)
		}
		if filter.Tier != "" && sum.Status != filter.Tier {
			continue
		}
		out = append(out, sum)
		if len(out) == limit {
			break
		}
	}

	counts, err := s.store.CountMessages(ctx, summaryIDs(out))
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	for i := range out {
		out[i].MessageCount = counts[out[i].Session.ID]
	}

	return &domain.ListResponse[domain.SessionSummary]{Data: out, Total: len(out)}, nil
}

// SessionDetail returns one session with its lead, transcript and
// notification history.
func (s *AdminService) SessionDetail(ctx context.Context, sessionID string) (*domain.SessionDetail, error) {
	ctx, span := tracer.Start(ctx, "AdminService.SessionDetail")
	defer span.End()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	lead, err := s.store.GetLeadBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}

	d := &domain.SessionDetail{Session: *sess, Lead: lead, Transcript: msgs}
	if lead != nil {
		score := lead.QualificationScore
		d.QualificationScore = &score
		d.Status = TierOf(score)

		notes, err := s.store.ListNotifications(ctx, lead.ID)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		sort.Slice(notes, func(i, j int) bool { return notes[i].SentAt.Before(notes[j].SentAt) })
		d.Notifications = notes
	}
	return d, nil
}

func sessionIDs(sessions []domain.Session) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func summaryIDs(rows []domain.SessionSummary) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Session.ID
	}
	return ids
}
