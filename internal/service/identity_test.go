package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/kv"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/service"
)

func newIdentity(store *fakeStore, local *kv.Memory) *service.Identity {
	return service.NewIdentity(local, store, observability.NewMetrics(), zap.NewNop())
}

func TestEnsureSession_CreatesOnceAndReuses(t *testing.T) {
	store := newFakeStore()
	local := kv.NewMemory()
	id := newIdentity(store, local)
	ctx := context.Background()

	first, err := id.EnsureSession(ctx, "browser-1", domain.SessionMetadata{LandingURL: "/pricing"})
	require.NoError(t, err)
	second, err := id.EnsureSession(ctx, "browser-1", domain.SessionMetadata{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.createCalls)

	visitor, ok, _ := local.Get(ctx, "browser-1", "visitor_id")
	require.True(t, ok)
	assert.Equal(t, visitor, store.sessions[first].VisitorID)

	_, locked, _ := local.Get(ctx, "browser-1", "init_lock")
	assert.False(t, locked, "lock released after creation")
}

func TestEnsureSession_ConcurrentCallersShareOneSession(t *testing.T) {
	store := newFakeStore()
	id := newIdentity(store, kv.NewMemory())

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for n := 0; n < callers; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := id.EnsureSession(context.Background(), "browser-2", domain.SessionMetadata{})
			assert.NoError(t, err)
			ids[n] = got
		}()
	}
	wg.Wait()

	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
	assert.Equal(t, 1, store.createCalls)
}

func TestEnsureSession_WaitsForForeignLockHolder(t *testing.T) {
	store := newFakeStore()
	local := kv.NewMemory()
	id := newIdentity(store, local)
	id.SetLockTiming(2*time.Second, 10*time.Millisecond)
	ctx := context.Background()

	ok, err := local.SetIfAbsent(ctx, "browser-3", "init_lock", "other-tab", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = local.Set(ctx, "browser-3", "session_id", "sess-from-other-tab")
	}()

	got, err := id.EnsureSession(ctx, "browser-3", domain.SessionMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "sess-from-other-tab", got)
	assert.Zero(t, store.createCalls)
}

func TestEnsureSession_TakesOverStaleLock(t *testing.T) {
	store := newFakeStore()
	local := kv.NewMemory()
	id := newIdentity(store, local)
	id.SetLockTiming(60*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	_, err := local.SetIfAbsent(ctx, "browser-4", "init_lock", "crashed-tab", 40*time.Millisecond)
	require.NoError(t, err)

	got, err := id.EnsureSession(ctx, "browser-4", domain.SessionMetadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, 1, store.createCalls)
}

func TestEnsureSession_FailureReleasesLock(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("db down")
	local := kv.NewMemory()
	id := newIdentity(store, local)
	ctx := context.Background()

	got, err := id.EnsureSession(ctx, "browser-5", domain.SessionMetadata{})
	assert.Empty(t, got)

	var initErr *domain.ErrSessionInit
	require.ErrorAs(t, err, &initErr)

	_, locked, _ := local.Get(ctx, "browser-5", "init_lock")
	assert.False(t, locked)
	_, hasSession, _ := local.Get(ctx, "browser-5", "session_id")
	assert.False(t, hasSession)

	store.createErr = nil
	got, err = id.EnsureSession(ctx, "browser-5", domain.SessionMetadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestEnsureSession_VisitorIDSurvivesNewSession(t *testing.T) {
	store := newFakeStore()
	local := kv.NewMemory()
	id := newIdentity(store, local)
	ctx := context.Background()

	first, err := id.EnsureSession(ctx, "browser-6", domain.SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, local.Delete(ctx, "browser-6", "session_id"))

	second, err := id.EnsureSession(ctx, "browser-6", domain.SessionMetadata{})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, store.sessions[first].VisitorID, store.sessions[second].VisitorID)
}
