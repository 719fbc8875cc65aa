package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/port"
)

// Session-init lock timings.
const (
	initLockTTL      = 3 * time.Second
	initPollInterval = 100 * time.Millisecond
	initTimeout      = 10 * time.Second
)

var errInitLockBusy = errors.New("session initialization already in progress")

// Identity ensures every browser scope has exactly one active session.
type Identity struct {
	local    port.LocalStore
	sessions port.SessionStore
	metrics  *observability.Metrics
	logger   *zap.Logger

	group        singleflight.Group
	lockTTL      time.Duration
	pollInterval time.Duration
}

// NewIdentity creates the identity service.
func NewIdentity(local port.LocalStore, sessions port.SessionStore, metrics *observability.Metrics, logger *zap.Logger) *Identity {
	return &Identity{
		local:        local,
		sessions:     sessions,
		metrics:      metrics,
		logger:       logger,
		lockTTL:      initLockTTL,
		pollInterval: initPollInterval,
	}
}

// EnsureSession returns the scope's session id, creating the session on
// first use. Concurrent calls for one scope in this process share a single
// creation; callers in other processes see the init lock, wait for it and
// re-read. On failure it returns "" and *domain.ErrSessionInit.
func (i *Identity) EnsureSession(ctx context.Context, scope string, meta domain.SessionMetadata) (string, error) {
	ctx, span := tracer.Start(ctx, "Identity.EnsureSession")
	defer span.End()

	if id, ok, err := i.local.Get(ctx, scope, keySessionID); err != nil {
		return "", i.fail(scope, fmt.Errorf("read session id: %w", err))
	} else if ok && id != "" {
		i.metrics.IncrSession("cached")
		span.SetAttributes(attribute.String("session.id", id))
		return id, nil
	}

	v, err, shared := i.group.Do(scope, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail
		// the others waiting on the same creation.
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), initTimeout)
		defer cancel()
		return i.create(createCtx, scope, meta)
	})
	if err != nil {
		return "", i.fail(scope, err)
	}

	id := v.(string)
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.Bool("session.shared", shared),
	)
	return id, nil
}

func (i *Identity) create(ctx context.Context, scope string, meta domain.SessionMetadata) (string, error) {
	if id, ok, err := i.local.Get(ctx, scope, keySessionID); err != nil {
		return "", fmt.Errorf("read session id: %w", err)
	} else if ok && id != "" {
		return id, nil
	}

	acquired, err := i.local.SetIfAbsent(ctx, scope, keyInitLock, strconv.FormatInt(time.Now().UnixMilli(), 10), i.lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire init lock: %w", err)
	}
	if !acquired {
		id, err := i.waitForSession(ctx, scope)
		if err == nil {
			i.metrics.IncrSession("cached")
			return id, nil
		}
		if !errors.Is(err, errInitLockBusy) {
			return "", err
		}
		// The holder never finished and its lock has lapsed: take over.
		acquired, err = i.local.SetIfAbsent(ctx, scope, keyInitLock, strconv.FormatInt(time.Now().UnixMilli(), 10), i.lockTTL)
		if err != nil {
			return "", fmt.Errorf("acquire init lock: %w", err)
		}
		if !acquired {
			return "", errInitLockBusy
		}
	}
	defer i.releaseLock(scope)

	visitorID, err := i.visitorID(ctx, scope)
	if err != nil {
		return "", err
	}

	sess, err := i.sessions.CreateSession(ctx, visitorID, meta)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	// Last writer wins if another process raced past a stale lock.
	if err := i.local.Set(ctx, scope, keySessionID, sess.ID); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}

	i.metrics.IncrSession("created")
	i.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("visitor_id", visitorID),
	)
	return sess.ID, nil
}

// waitForSession polls the scope until a session id appears or the lock
// holder's window has passed.
func (i *Identity) waitForSession(ctx context.Context, scope string) (string, error) {
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(i.lockTTL)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		id, ok, err := i.local.Get(ctx, scope, keySessionID)
		if err != nil {
			return "", fmt.Errorf("read session id: %w", err)
		}
		if ok && id != "" {
			return id, nil
		}
	}
	return "", errInitLockBusy
}

// visitorID returns the scope's long-lived visitor id, generating it once.
func (i *Identity) visitorID(ctx context.Context, scope string) (string, error) {
	id, ok, err := i.local.Get(ctx, scope, keyVisitorID)
	if err != nil {
		return "", fmt.Errorf("read visitor id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := i.local.Set(ctx, scope, keyVisitorID, id); err != nil {
		return "", fmt.Errorf("persist visitor id: %w", err)
	}
	return id, nil
}

func (i *Identity) releaseLock(scope string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := i.local.Delete(ctx, scope, keyInitLock); err != nil {
		i.logger.Warn("failed to release init lock", zap.String("scope", scope), zap.Error(err))
	}
}

func (i *Identity) fail(scope string, err error) error {
	i.metrics.IncrSession("failed")
	i.logger.Error("session init failed", zap.String("scope", scope), zap.Error(err))
	return &domain.ErrSessionInit{Err: err}
}

// VisitorID returns the scope's visitor id without creating one.
func (i *Identity) VisitorID(ctx context.Context, scope string) (string, bool, error) {
	return i.local.Get(ctx, scope, keyVisitorID)
}

// SessionForScope returns the session id cached in the scope, if any.
func (i *Identity) SessionForScope(ctx context.Context, scope string) (string, bool, error) {
	return i.local.Get(ctx, scope, keySessionID)
}
