package service

import (
	"sync"
	"time"

	"github.com/boddenberg/leadchat-go/internal/infra/cache"
)

// SetLockTiming shortens the init-lock window for tests.
func (i *Identity) SetLockTiming(ttl, poll time.Duration) {
	i.lockTTL = ttl
	i.pollInterval = poll
}

// SetAfterFunc replaces the activation timer factory.
func (a *Activator) SetAfterFunc(f func(time.Duration, func()) interface{ Stop() bool }) {
	a.afterFunc = func(d time.Duration, fn func()) stopper { return f(d, fn) }
}

// WaitForCaptures blocks until contact captures started by Send finish.
func (c *Conversations) WaitForCaptures() {
	c.captures.Wait()
}

// SetLockTTL rebuilds the capture lock cache with a shorter idle TTL.
func (p *LeadPipeline) SetLockTTL(ttl time.Duration) {
	p.locks.Stop()
	p.locks = cache.New[*sync.Mutex](ttl)
}

// LockCount reports how many capture locks are cached.
func (p *LeadPipeline) LockCount() int {
	return p.locks.Len()
}
