// Package backend tracks the TTS backend pool: per-backend concurrency
// gates, health, and selection among healthy backends.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riverbend/ttsproxy/internal/metrics"
)

const (
	cooldownThreshold = 3
	cooldownBase       = 30 * time.Second
	cooldownCeiling    = 5 * time.Minute
)

// Backend is one TTS synthesis endpoint and its live health/concurrency state.
type Backend struct {
	URL            string
	Token          string
	MaxConcurrent  int

	mu                  sync.Mutex
	inFlight            int
	consecutiveFailures int
	cooldownUntil       time.Time
	totalRequests       int
	totalFailures       int
}

// Stat is a point-in-time snapshot of a backend's counters, safe to hand
// to callers outside the pool's lock.
type Stat struct {
	URL                 string
	InFlight            int
	MaxConcurrent       int
	ConsecutiveFailures int
	CooldownUntil       time.Time
	TotalRequests       int
	TotalFailures       int
}

// Pool holds the configured backend list and arbitrates selection.
type Pool struct {
	mu       sync.Mutex
	backends []*Backend
	cond     *sync.Cond
}

// NewPool builds a pool from (url, token, maxConcurrent) triples.
func NewPool(backends []*Backend) *Pool {
	p := &Pool{backends: backends}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Release returns a previously acquired backend's concurrency slot.
type Release func()

// Acquire selects a backend honoring per-backend concurrency caps and
// cooldown, blocking until one is free or ctx is done. The returned Release
// must be called exactly once, regardless of how the caller's request ends.
func (p *Pool) Acquire(ctx context.Context) (*Backend, Release, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()

	p.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, nil, fmt.Errorf("acquire backend: %w", err)
		}
		if b := p.selectLocked(); b != nil {
			b.mu.Lock()
			b.inFlight++
			b.totalRequests++
			inFlight := b.inFlight
			b.mu.Unlock()
			metrics.BackendInFlight.WithLabelValues(b.URL).Set(float64(inFlight))
			p.mu.Unlock()
			return b, func() { p.release(b) }, nil
		}
		p.cond.Wait()
	}
}

// selectLocked picks the best eligible backend. Caller holds p.mu.
func (p *Pool) selectLocked() *Backend {
	now := time.Now()
	var candidates []*Backend
	for _, b := range p.backends {
		b.mu.Lock()
		eligible := b.inFlight < b.MaxConcurrent && (b.cooldownUntil.IsZero() || now.After(b.cooldownUntil))
		b.mu.Unlock()
		if eligible {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		a.mu.Lock()
		aInFlight, aFail, aTotal := a.inFlight, a.consecutiveFailures, a.totalRequests
		a.mu.Unlock()
		b.mu.Lock()
		bInFlight, bFail, bTotal := b.inFlight, b.consecutiveFailures, b.totalRequests
		b.mu.Unlock()
		if aInFlight != bInFlight {
			return aInFlight < bInFlight
		}
		if aFail != bFail {
			return aFail < bFail
		}
		return aTotal < bTotal
	})
	return candidates[0]
}

func (p *Pool) release(b *Backend) {
	b.mu.Lock()
	b.inFlight--
	inFlight := b.inFlight
	b.mu.Unlock()
	metrics.BackendInFlight.WithLabelValues(b.URL).Set(float64(inFlight))
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// ReportSuccess clears failure/cooldown state after a successful synthesis.
func (p *Pool) ReportSuccess(b *Backend) {
	b.mu.Lock()
	b.consecutiveFailures = 0
	b.cooldownUntil = time.Time{}
	b.mu.Unlock()
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// ReportFailure records a failed synthesis attempt and, once the backend
// crosses the failure threshold, sets an exponentially growing cooldown.
func (p *Pool) ReportFailure(b *Backend) {
	b.mu.Lock()
	b.consecutiveFailures++
	b.totalFailures++
	if b.consecutiveFailures >= cooldownThreshold {
		backoff := cooldownBase << uint(b.consecutiveFailures-cooldownThreshold)
		if backoff > cooldownCeiling || backoff <= 0 {
			backoff = cooldownCeiling
		}
		b.cooldownUntil = time.Now().Add(backoff)
	}
	b.mu.Unlock()
}

// Stats returns a snapshot of every backend's counters.
func (p *Pool) Stats() []Stat {
	p.mu.Lock()
	backends := make([]*Backend, len(p.backends))
	copy(backends, p.backends)
	p.mu.Unlock()

	out := make([]Stat, len(backends))
	for i, b := range backends {
		b.mu.Lock()
		out[i] = Stat{
			URL:                 b.URL,
			InFlight:            b.inFlight,
			MaxConcurrent:       b.MaxConcurrent,
			ConsecutiveFailures: b.consecutiveFailures,
			CooldownUntil:       b.cooldownUntil,
			TotalRequests:       b.totalRequests,
			TotalFailures:       b.totalFailures,
		}
		b.mu.Unlock()
	}
	return out
}
