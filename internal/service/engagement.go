package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/port"
)

// EngagementStore reads and writes the per-browser engagement flags. Flags
// only move from false to true, so plain last-writer-wins writes are safe.
type EngagementStore struct {
	local port.LocalStore
}

// NewEngagementStore wraps a storage scope backend.
func NewEngagementStore(local port.LocalStore) *EngagementStore {
	return &EngagementStore{local: local}
}

// Load returns the current flags for a scope.
func (s *EngagementStore) Load(ctx context.Context, scope string) (domain.EngagementState, error) {
	var st domain.EngagementState
	for key, dst := range map[string]*bool{
		keyHasVisited:      &st.HasVisited,
		keyHasEngaged:      &st.HasEngaged,
		keyExitIntentShown: &st.ExitIntentShown,
		keyProactiveShown:  &st.ProactiveShown,
	} {
		v, ok, err := s.local.Get(ctx, scope, key)
		if err != nil {
			return domain.EngagementState{}, fmt.Errorf("load %s: %w", key, err)
		}
		*dst = ok && v == "1"
	}
	return st, nil
}

// MarkVisited sets hasVisited.
func (s *EngagementStore) MarkVisited(ctx context.Context, scope string) error {
	return s.set(ctx, scope, keyHasVisited)
}

// MarkEngaged sets hasEngaged. Called whenever the widget opens.
func (s *EngagementStore) MarkEngaged(ctx context.Context, scope string) error {
	return s.set(ctx, scope, keyHasEngaged)
}

// MarkProactiveShown sets hasEngaged and proactiveShown.
func (s *EngagementStore) MarkProactiveShown(ctx context.Context, scope string) error {
	if err := s.set(ctx, scope, keyHasEngaged); err != nil {
		return err
	}
	return s.set(ctx, scope, keyProactiveShown)
}

// MarkExitIntentShown sets hasEngaged and exitIntentShown.
func (s *EngagementStore) MarkExitIntentShown(ctx context.Context, scope string) error {
	if err := s.set(ctx, scope, keyHasEngaged); err != nil {
		return err
	}
	return s.set(ctx, scope, keyExitIntentShown)
}

func (s *EngagementStore) set(ctx context.Context, scope, key string) error {
	if err := s.local.Set(ctx, scope, key, "1"); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
