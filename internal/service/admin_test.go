package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/service"
)

const adminSecret = "test-secret"

func newAdmin(t *testing.T, store *fakeStore) *service.AdminService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return service.NewAdminService(store, string(hash), adminSecret, time.Hour, zap.NewNop())
}

// seedFunnel creates four sessions: one silent, one chatting without a lead,
// one low lead and one high-value lead.
func seedFunnel(t *testing.T, store *fakeStore) (ids []string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		ids = append(ids, seedSession(t, store))
	}
	for _, id := range ids[1:] {
		_, _ = store.AppendMessage(ctx, id, domain.RoleUser, "hi")
	}
	at := store.clock
	store.leads[ids[2]] = &domain.Lead{ID: "l-low", SessionID: ids[2], QualificationScore: 40, Status: domain.TierLow, Snapshot: 1, CreatedAt: at,
		Attributes: domain.LeadAttributes{Name: "Low", Email: "low@x.test"}}
	store.leads[ids[3]] = &domain.Lead{ID: "l-hv", SessionID: ids[3], QualificationScore: 90, Status: domain.TierHighValue, Snapshot: 1, CreatedAt: at.Add(time.Second),
		Attributes: domain.LeadAttributes{Name: "High", Email: "high@x.test"}}
	return ids
}

func TestAdmin_LoginAndValidate(t *testing.T) {
	admin := newAdmin(t, newFakeStore())

	resp, err := admin.Login(context.Background(), &domain.AdminLoginRequest{Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, 3600, resp.ExpiresIn)

	claims, err := admin.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func TestAdmin_LoginRejectsWrongPassword(t *testing.T) {
	admin := newAdmin(t, newFakeStore())

	_, err := admin.Login(context.Background(), &domain.AdminLoginRequest{Password: "nope"})
	var ua *domain.ErrUnauthorized
	assert.ErrorAs(t, err, &ua)
}

func TestAdmin_LoginDisabledWithoutHash(t *testing.T) {
	admin := service.NewAdminService(newFakeStore(), "", adminSecret, time.Hour, zap.NewNop())

	_, err := admin.Login(context.Background(), &domain.AdminLoginRequest{Password: "anything"})
	var ua *domain.ErrUnauthorized
	assert.ErrorAs(t, err, &ua)
}

func TestAdmin_ValidateRejectsForeignTokens(t *testing.T) {
	admin := newAdmin(t, newFakeStore())
	var ua *domain.ErrUnauthorized

	_, err := admin.ValidateToken("not.a.token")
	assert.ErrorAs(t, err, &ua)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AdminClaims{
		Type:             "access",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin", Issuer: "leadchat"},
	})
	signed, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = admin.ValidateToken(signed)
	assert.ErrorAs(t, err, &ua)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AdminClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "leadchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err = expired.SignedString([]byte(adminSecret))
	require.NoError(t, err)
	_, err = admin.ValidateToken(signed)
	assert.ErrorAs(t, err, &ua)
}

func TestHashPassword(t *testing.T) {
	_, err := service.HashPassword("short")
	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)

	hash, err := service.HashPassword("long enough password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))
}

func TestAdmin_Funnel(t *testing.T) {
	store := newFakeStore()
	seedFunnel(t, store)

	f, err := newAdmin(t, store).Funnel(context.Background(), domain.TimeRange{})
	require.NoError(t, err)

	assert.Equal(t, 4, f.Sessions)
	assert.Equal(t, 3, f.Conversations)
	assert.Equal(t, 2, f.Leads)
	assert.Equal(t, 1, f.QualifiedLeads, "high-value counts as qualified")
	assert.Equal(t, 1, f.HighValueLeads)
	assert.InDelta(t, 0.5, f.ConversionRate, 1e-9)
	assert.InDelta(t, 0.5, f.QualifiedRate, 1e-9)
	assert.InDelta(t, 65, f.AverageScore, 1e-9)
}

func TestAdmin_FunnelUsesScoreNotStoredTier(t *testing.T) {
	store := newFakeStore()
	ids := seedFunnel(t, store)
	// A stale stored status must not change the funnel.
	store.leads[ids[2]].QualificationScore = 60

	f, err := newAdmin(t, store).Funnel(context.Background(), domain.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.QualifiedLeads)
}

func TestAdmin_ListSessionsWithTierFilter(t *testing.T) {
	store := newFakeStore()
	ids := seedFunnel(t, store)
	admin := newAdmin(t, store)

	all, err := admin.ListSessions(context.Background(), domain.SessionFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, all.Total)
	assert.Equal(t, ids[3], all.Data[0].Session.ID, "newest first")
	assert.Equal(t, 1, all.Data[0].MessageCount)
	require.NotNil(t, all.Data[0].QualificationScore)
	assert.Equal(t, 90, *all.Data[0].QualificationScore)
	assert.Nil(t, all.Data[3].QualificationScore)

	hv, err := admin.ListSessions(context.Background(), domain.SessionFilter{Tier: domain.TierHighValue, Limit: 1})
	require.NoError(t, err)
	require.Len(t, hv.Data, 1)
	assert.Equal(t, ids[3], hv.Data[0].Session.ID)

	low, err := admin.ListSessions(context.Background(), domain.SessionFilter{Tier: domain.TierLow})
	require.NoError(t, err)
	require.Len(t, low.Data, 1)
	assert.Equal(t, ids[2], low.Data[0].Session.ID)
}

func TestAdmin_SessionDetail(t *testing.T) {
	store := newFakeStore()
	ids := seedFunnel(t, store)
	_ = store.RecordNotification(context.Background(), &domain.NotificationRecord{
		LeadID: "l-hv", Snapshot: 1, Kind: domain.NotifyInternalAlert, SentAt: time.Now(),
	})
	admin := newAdmin(t, store)

	d, err := admin.SessionDetail(context.Background(), ids[3])
	require.NoError(t, err)
	require.NotNil(t, d.QualificationScore)
	assert.Equal(t, 90, *d.QualificationScore)
	assert.Equal(t, domain.TierHighValue, d.Status)
	assert.Len(t, d.Transcript, 1)
	assert.Len(t, d.Notifications, 1)

	d, err = admin.SessionDetail(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Nil(t, d.Lead)
	assert.Empty(t, d.Transcript)

	_, err = admin.SessionDetail(context.Background(), "missing")
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}
