package service

import (
	"sync"
	"time"

	"github.com/boddenberg/leadchat-go/internal/domain"
)

// Exit-intent heuristic defaults.
const (
	DefaultExitTopMargin   = 10.0                   // px from the top of the viewport
	DefaultExitMinVelocity = 0.5                    // px/ms, upward
	DefaultExitDebounce    = 200 * time.Millisecond // quiet period after a scroll
)

// ExitIntentDetector watches pointer samples for a fast upward move across
// the top edge of the viewport. It fires at most once.
type ExitIntentDetector struct {
	TopMargin   float64
	MinVelocity float64
	Debounce    time.Duration

	mu         sync.Mutex
	armed      bool
	last       *domain.PointerSample
	lastScroll time.Time
}

// NewExitIntentDetector returns an armed detector with default thresholds.
func NewExitIntentDetector() *ExitIntentDetector {
	return &ExitIntentDetector{
		TopMargin:   DefaultExitTopMargin,
		MinVelocity: DefaultExitMinVelocity,
		Debounce:    DefaultExitDebounce,
		armed:       true,
	}
}

// Scroll records a scroll event. Pointer moves shortly after a scroll are
// ignored.
func (d *ExitIntentDetector) Scroll(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastScroll = at
}

// Observe feeds one pointer sample and reports whether exit intent fired.
// After firing the detector stays disarmed.
func (d *ExitIntentDetector) Observe(s domain.PointerSample) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed {
		return false
	}
	prev := d.last
	d.last = &s
	if prev == nil {
		return false
	}
	if !d.lastScroll.IsZero() && s.At.Sub(d.lastScroll) < d.Debounce {
		return false
	}

	// Crossing: previous sample below the margin, this one at or above it.
	if prev.Y <= d.TopMargin || s.Y > d.TopMargin {
		return false
	}

	elapsedMs := float64(s.At.Sub(prev.At)) / float64(time.Millisecond)
	if elapsedMs <= 0 {
		return false
	}
	velocity := (prev.Y - s.Y) / elapsedMs
	if velocity < d.MinVelocity {
		return false
	}

	d.armed = false
	return true
}

// Disarm stops the detector without firing.
func (d *ExitIntentDetector) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
}

// Armed reports whether the detector can still fire.
func (d *ExitIntentDetector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
