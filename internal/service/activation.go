package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
)

type stopper interface {
	Stop() bool
}

// Activator decides when the chat widget opens by itself: once after the
// page's proactive delay, or once on exit intent.
type Activator struct {
	triggers   *TriggerEngine
	engagement *EngagementStore
	metrics    *observability.Metrics
	logger     *zap.Logger

	afterFunc func(time.Duration, func()) stopper
}

// NewActivator creates the activation service.
func NewActivator(triggers *TriggerEngine, engagement *EngagementStore, metrics *observability.Metrics, logger *zap.Logger) *Activator {
	return &Activator{
		triggers:   triggers,
		engagement: engagement,
		metrics:    metrics,
		logger:     logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Plan evaluates the page without starting anything and records the visit.
func (a *Activator) Plan(ctx context.Context, scope, rawURL string, timeOnPage time.Duration) (*domain.ActivationPlan, error) {
	ctx, span := tracer.Start(ctx, "Activator.Plan")
	defer span.End()

	state, err := a.engagement.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !state.HasVisited {
		if err := a.engagement.MarkVisited(ctx, scope); err != nil {
			a.logger.Warn("failed to mark visit", zap.String("scope", scope), zap.Error(err))
		}
		state.HasVisited = true
	}

	pageCtx := a.triggers.CurrentContext(rawURL, timeOnPage, state)
	rule := a.triggers.Rules(pageCtx.PageType)
	span.SetAttributes(attribute.String("page.type", string(pageCtx.PageType)))

	return &domain.ActivationPlan{
		Context:         pageCtx,
		Rule:            rule,
		ProactiveArmed:  !pageCtx.PreviouslyEngaged && !state.ProactiveShown,
		ExitIntentArmed: rule.EnableExitIntent && !state.ExitIntentShown,
		Engagement:      state,
	}, nil
}

// Mount starts both activation paths for one mounted widget. open is called
// at most once, from the timer goroutine or from Pointer.
func (a *Activator) Mount(ctx context.Context, scope, rawURL string, timeOnPage time.Duration, open func(domain.ActivationReason)) (*Activation, error) {
	plan, err := a.Plan(ctx, scope, rawURL, timeOnPage)
	if err != nil {
		return nil, err
	}

	m := &Activation{
		ctx:    ctx,
		scope:  scope,
		plan:   *plan,
		parent: a,
		open:   open,
	}
	if plan.ExitIntentArmed {
		m.detector = NewExitIntentDetector()
	}
	if plan.ProactiveArmed {
		wait := max(plan.Rule.Delay()-timeOnPage, 0)
		m.timer = a.afterFunc(wait, func() { m.fire(domain.ActivationProactive) })
	}

	a.logger.Debug("widget mounted",
		zap.String("scope", scope),
		zap.String("page_type", string(plan.Context.PageType)),
		zap.Bool("proactive_armed", plan.ProactiveArmed),
		zap.Bool("exit_intent_armed", plan.ExitIntentArmed),
	)
	return m, nil
}

// Activation is the activation state of one mounted widget.
type Activation struct {
	ctx    context.Context
	scope  string
	plan   domain.ActivationPlan
	parent *Activator
	open   func(domain.ActivationReason)

	mu         sync.Mutex
	detector   *ExitIntentDetector
	timer      stopper
	widgetOpen bool
	done       bool
}

// Plan returns the evaluation made at mount time.
func (m *Activation) Plan() domain.ActivationPlan {
	return m.plan
}

// Pointer feeds a pointer sample to the exit-intent detector.
func (m *Activation) Pointer(s domain.PointerSample) {
	m.mu.Lock()
	fired := !m.done && !m.widgetOpen && m.detector != nil && m.detector.Observe(s)
	m.mu.Unlock()

	if fired {
		m.fire(domain.ActivationExitIntent)
	}
}

// Scroll debounces exit-intent detection after a scroll.
func (m *Activation) Scroll(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector != nil {
		m.detector.Scroll(at)
	}
}

// WidgetToggled records a visitor opening or closing the widget. Any toggle
// cancels both automatic paths; opening also marks the visitor engaged.
func (m *Activation) WidgetToggled(ctx context.Context, open bool) {
	m.mu.Lock()
	m.widgetOpen = open
	m.cancelLocked()
	m.mu.Unlock()

	if open {
		if err := m.parent.engagement.MarkEngaged(ctx, m.scope); err != nil {
			m.parent.logger.Warn("failed to mark engaged", zap.String("scope", m.scope), zap.Error(err))
		}
	}
}

// Unmount cancels both paths. Safe to call more than once.
func (m *Activation) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *Activation) cancelLocked() {
	m.done = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.detector != nil {
		m.detector.Disarm()
	}
}

func (m *Activation) fire(reason domain.ActivationReason) {
	m.mu.Lock()
	if m.done || m.widgetOpen {
		m.mu.Unlock()
		return
	}
	m.widgetOpen = true
	m.cancelLocked()
	m.mu.Unlock()

	var err error
	switch reason {
	case domain.ActivationProactive:
		err = m.parent.engagement.MarkProactiveShown(m.ctx, m.scope)
	case domain.ActivationExitIntent:
		err = m.parent.engagement.MarkExitIntentShown(m.ctx, m.scope)
	}
	if err != nil {
		m.parent.logger.Warn("failed to persist activation",
			zap.String("scope", m.scope),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	}

	m.parent.metrics.IncrActivation(reason)
	m.open(reason)
}
