package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/handler"
	"github.com/boddenberg/leadchat-go/internal/infra/email"
	"github.com/boddenberg/leadchat-go/internal/infra/kv"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/infra/sqlite"
	"github.com/boddenberg/leadchat-go/internal/port"
	"github.com/boddenberg/leadchat-go/internal/service"
)

type stubReply struct {
	reply string
	err   error
}

func (s stubReply) GenerateReply(context.Context, []domain.Message) (string, error) {
	return s.reply, s.err
}

// brokenSessions fails session creation to exercise the session-less path.
type brokenSessions struct {
	*sqlite.Store
}

func (brokenSessions) CreateSession(context.Context, string, domain.SessionMetadata) (*domain.Session, error) {
	return nil, errors.New("database unavailable")
}

type testEnv struct {
	server  *httptest.Server
	metrics *observability.Metrics
}

func newEnv(t *testing.T, reply port.ReplyGenerator, sessions func(*sqlite.Store) port.SessionStore) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, "sqlite3", ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var sessionStore port.SessionStore = store
	if sessions != nil {
		sessionStore = sessions(store)
	}

	metrics := observability.NewMetrics()
	local := kv.NewMemory()
	limiter := service.NewRateLimiter(60, 10, time.Minute)
	t.Cleanup(limiter.Stop)

	dispatcher := service.NewDispatcher(email.NewLogSender(logger), store, store,
		service.SiteInfo{Name: "Northwind", SalesInbox: "sales@northwind.test"}, metrics, logger)
	leads := service.NewLeadPipeline(store, store, dispatcher, metrics, logger)
	t.Cleanup(leads.Stop)
	conversations := service.NewConversations(store, reply, leads, limiter, time.Minute, metrics, logger)
	t.Cleanup(conversations.Stop)

	hash, err := bcrypt.GenerateFromPassword([]byte("letmein-please"), bcrypt.MinCost)
	require.NoError(t, err)

	svc := handler.Services{
		Identity:      service.NewIdentity(local, sessionStore, metrics, logger),
		Activator:     service.NewActivator(service.NewTriggerEngine(nil), service.NewEngagementStore(local), metrics, logger),
		Conversations: conversations,
		Leads:         leads,
		Admin:         service.NewAdminService(store, string(hash), "test-secret", time.Hour, logger),
	}
	router := handler.NewRouter(svc, handler.RouterConfig{
		AllowedOrigins: []string{"https://northwind.test"},
		HealthChecks:   []handler.HealthCheck{{Name: "store", Ping: store.Ping}},
	}, metrics, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, metrics: metrics}
}

// browser returns a client with its own cookie jar.
func (e *testEnv) browser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) ensureSession(t *testing.T, c *http.Client) string {
	t.Helper()
	var resp domain.EnsureSessionResponse
	code := doJSON(t, c, http.MethodPost, e.server.URL+"/v1/sessions", domain.EnsureSessionRequest{LandingURL: "/pricing"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.ChatEnabled)
	return resp.SessionID
}

func TestHealthz(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)

	var health domain.HealthStatus
	code := doJSON(t, http.DefaultClient, http.MethodGet, env.server.URL+"/healthz", nil, &health)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Services, 2)
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.RouterConfig{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.RouterConfig{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSessionIsStablePerBrowser(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	alice, bob := env.browser(t), env.browser(t)

	a1 := env.ensureSession(t, alice)
	a2 := env.ensureSession(t, alice)
	b1 := env.ensureSession(t, bob)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b1)
}

func TestEnsureSession_DegradesWhenStoreFails(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, func(s *sqlite.Store) port.SessionStore { return brokenSessions{s} })

	var resp domain.EnsureSessionResponse
	code := doJSON(t, env.browser(t), http.MethodPost, env.server.URL+"/v1/sessions", nil, &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, resp.ChatEnabled)
	assert.Empty(t, resp.SessionID)
}

func TestConversationFlow(t *testing.T) {
	env := newEnv(t, stubReply{reply: "We design and build web products."}, nil)
	c := env.browser(t)
	id := env.ensureSession(t, c)
	base := env.server.URL + "/v1/sessions/" + id

	var view domain.ConversationView
	require.Equal(t, http.StatusOK, doJSON(t, c, http.MethodGet, base+"/conversation", nil, &view))
	assert.Equal(t, string(service.StateGreeting), view.State)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, service.GreetingMessage, view.Messages[0].Content)

	require.Equal(t, http.StatusOK, doJSON(t, c, http.MethodPost, base+"/messages", domain.ChatRequest{Content: "What do you do?"}, &view))
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "We design and build web products.", view.Messages[1].Content)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, c, http.MethodPost, base+"/messages", domain.ChatRequest{Content: "  "}, nil))
	assert.Equal(t, http.StatusNoContent, doJSON(t, c, http.MethodPost, base+"/close", nil, nil))

	require.Equal(t, http.StatusOK, doJSON(t, c, http.MethodGet, base+"/conversation", nil, &view))
	assert.Len(t, view.Messages, 2, "history reloaded, no second greeting")
}

func TestConversation_FallbackHidesProviderError(t *testing.T) {
	env := newEnv(t, stubReply{err: errors.New("upstream 500: secret stack trace")}, nil)
	c := env.browser(t)
	id := env.ensureSession(t, c)

	var view domain.ConversationView
	code := doJSON(t, c, http.MethodPost, env.server.URL+"/v1/sessions/"+id+"/messages", domain.ChatRequest{Content: "hello"}, &view)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.FallbackReply, view.Messages[1].Content)
	assert.Equal(t, int64(1), env.metrics.GetChatSnapshot().MessagesReceived)
}

func TestSessionsAreScopedToTheirBrowser(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	id := env.ensureSession(t, env.browser(t))

	code := doJSON(t, env.browser(t), http.MethodGet, env.server.URL+"/v1/sessions/"+id+"/conversation", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCaptureLead(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	c := env.browser(t)
	id := env.ensureSession(t, c)

	var resp domain.CaptureResponse
	code := doJSON(t, c, http.MethodPost, env.server.URL+"/v1/sessions/"+id+"/lead", domain.LeadAttributes{
		Name:        "Ana",
		Email:       "ana@acme.test",
		Company:     domain.Ptr("Acme"),
		BudgetRange: domain.Ptr("100k+"),
		Timeline:    domain.Ptr("asap"),
	}, &resp)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 75, resp.Lead.QualificationScore)
	assert.Equal(t, domain.TierQualified, resp.Lead.Status)
	require.NotNil(t, resp.Dispatch)
	assert.True(t, resp.Dispatch.VisitorEmailSent)
	assert.True(t, resp.Dispatch.InternalEmailSent)
	assert.False(t, resp.Dispatch.HighValueAlertSent)

	code = doJSON(t, c, http.MethodPost, env.server.URL+"/v1/sessions/"+id+"/lead", map[string]string{"name": "No Email"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	c := env.browser(t)

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, c, http.MethodGet, env.server.URL+"/v1/admin/funnel", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, c, http.MethodPost, env.server.URL+"/v1/admin/login",
		domain.AdminLoginRequest{Password: "wrong"}, nil))
}

func TestAdminFlow(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	visitor := env.browser(t)
	id := env.ensureSession(t, visitor)
	doJSON(t, visitor, http.MethodPost, env.server.URL+"/v1/sessions/"+id+"/messages", domain.ChatRequest{Content: "hello"}, nil)

	var login domain.AdminLoginResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.DefaultClient, http.MethodPost, env.server.URL+"/v1/admin/login",
		domain.AdminLoginRequest{Password: "letmein-please"}, &login))

	get := func(path string, out any) int {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		if out != nil && resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		}
		return resp.StatusCode
	}

	var funnel domain.FunnelMetrics
	require.Equal(t, http.StatusOK, get("/v1/admin/funnel", &funnel))
	assert.Equal(t, 1, funnel.Sessions)
	assert.Equal(t, 1, funnel.Conversations)

	var list domain.ListResponse[domain.SessionSummary]
	require.Equal(t, http.StatusOK, get("/v1/admin/sessions", &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, 2, list.Data[0].MessageCount)

	var detail domain.SessionDetail
	require.Equal(t, http.StatusOK, get("/v1/admin/sessions/"+id, &detail))
	assert.Len(t, detail.Transcript, 2)

	assert.Equal(t, http.StatusBadRequest, get("/v1/admin/sessions?tier=gold", nil))
	assert.Equal(t, http.StatusBadRequest, get("/v1/admin/funnel?from=yesterday", nil))
	assert.Equal(t, http.StatusNotFound, get("/v1/admin/sessions/missing", nil))
}

func TestWidgetContext(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)

	var plan domain.ActivationPlan
	code := doJSON(t, env.browser(t), http.MethodGet,
		env.server.URL+"/v1/widget/context?url="+url.QueryEscape("https://northwind.test/pricing")+"&time_on_page_ms=4000", nil, &plan)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.PagePricing, plan.Context.PageType)
	assert.Equal(t, 4*time.Second, plan.Context.TimeOnPage)
	assert.True(t, plan.ProactiveArmed)
	assert.True(t, plan.Engagement.HasVisited)
}

func TestWidgetSocket_ExitIntentOpensWidget(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/widget/ws?url=%2Fblog%2Fpost"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://northwind.test"}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame struct {
		Type   string                 `json:"type"`
		Reason string                 `json:"reason"`
		Plan   *domain.ActivationPlan `json:"plan"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "plan", frame.Type)
	assert.True(t, frame.Plan.ExitIntentArmed)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointer", "x": 300, "y": 200, "ts": 1_000}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointer", "x": 300, "y": 3, "ts": 1_100}))

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "open", frame.Type)
	assert.Equal(t, "exit_intent", frame.Reason)
}

func TestWidgetSocket_RejectsForeignOrigin(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/widget/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestChatMetricsEndpoint(t *testing.T) {
	env := newEnv(t, stubReply{reply: "hi"}, nil)
	c := env.browser(t)
	env.ensureSession(t, c)

	var snap domain.ChatMetrics
	require.Equal(t, http.StatusOK, doJSON(t, c, http.MethodGet, env.server.URL+"/v1/metrics/chat", nil, &snap))
	assert.Equal(t, int64(1), snap.SessionsCreated)
	assert.Equal(t, "since_start", snap.Period)
}

func TestCORSPreflight(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, handler.RouterConfig{AllowedOrigins: []string{"https://northwind.test"}},
		observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
	req.Header.Set("Origin", "https://northwind.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://northwind.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
