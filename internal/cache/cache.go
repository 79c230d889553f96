// Package cache implements the single-flight TTS cache: at most one
// synthesis in flight per fingerprint, LRU + TTL eviction, and many
// concurrent waiters woken from a single resolution.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/riverbend/ttsproxy/internal/apierr"
	"github.com/riverbend/ttsproxy/internal/fingerprint"
	"github.com/riverbend/ttsproxy/internal/metrics"
)

// Status is an entry's lifecycle state.
type Status int

const (
	Pending Status = iota
	Completed
	Failed
)

// Entry is one cached (or in-flight) synthesis result.
type Entry struct {
	Fingerprint string
	Text        string
	Model       string
	Voice       string
	Status      Status
	Audio       []byte
	Err         error
	CreatedAt   time.Time
	CompletedAt time.Time

	done     chan struct{} // closed exactly once, when Status leaves Pending
	waiters  int32
}

// Synthesizer is the subset of *dispatcher.Dispatcher the cache depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, model, voice, text string, deadline time.Time) ([]byte, error)
}

// Stats is a snapshot of the cache's counters.
type Stats struct {
	Size          int
	Hits          int64
	Misses        int64
	Pending       int
	EvictionsLRU  int64
	EvictionsTTL  int64
}

// Cache is the single-flight, LRU+TTL TTS cache.
type Cache struct {
	synth   Synthesizer
	maxSize int
	ttl     time.Duration

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, *Entry]

	hits         int64
	misses       int64
	evictionsLRU int64
	evictionsTTL int64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New builds a Cache. synth performs the actual TTS synthesis; maxSize and
// ttl bound the cache's memory and entry lifetime.
func New(synth Synthesizer, maxSize int, ttl time.Duration) *Cache {
	c := &Cache{
		synth:     synth,
		maxSize:   maxSize,
		ttl:       ttl,
		entries:   orderedmap.New[string, *Entry](),
		stopSweep: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background TTL sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// Submit fires off a background synthesis for (model, voice, text) if one
// isn't already pending or complete. Fire-and-forget, idempotent.
func (c *Cache) Submit(model, voice, text string, requestTimeout time.Duration) {
	fp := fingerprint.Compute(model, voice, text)
	c.getOrCreate(fp, model, voice, text, requestTimeout)
}

// Get resolves (model, voice, text), waiting on an in-flight synthesis if
// necessary, up to deadline.
func (c *Cache) Get(ctx context.Context, model, voice, text string, deadline time.Time) ([]byte, error) {
	fp := fingerprint.Compute(model, voice, text)

	c.mu.Lock()
	entry, existed := c.entries.Get(fp)
	if existed && entry.Status == Completed {
		c.touchLocked(fp, entry)
		c.hits++
		audio := entry.Audio
		c.mu.Unlock()
		metrics.CacheHitsTotal.Inc()
		return audio, nil
	}
	if !existed {
		c.misses++
		metrics.CacheMissesTotal.Inc()
	}
	c.mu.Unlock()

	entry = c.getOrCreate(fp, model, voice, text, time.Until(deadline))
	return c.await(ctx, entry, deadline)
}

// getOrCreate performs the atomic absent→Pending transition. If an entry
// already exists (Pending or Completed) it is returned unchanged; Failed
// entries are replaced, since failures are never served from cache.
func (c *Cache) getOrCreate(fp, model, voice, text string, requestTimeout time.Duration) *Entry {
	c.mu.Lock()
	if entry, ok := c.entries.Get(fp); ok && entry.Status != Failed {
		c.mu.Unlock()
		return entry
	}

	entry := &Entry{
		Fingerprint: fp,
		Text:        text,
		Model:       model,
		Voice:       voice,
		Status:      Pending,
		CreatedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	c.entries.Set(fp, entry)
	size := c.entries.Len()
	c.mu.Unlock()
	metrics.CacheSize.Set(float64(size))

	go c.synthesizeAndStore(entry, requestTimeout)
	return entry
}

// await blocks until entry resolves, ctx is cancelled, or deadline passes.
func (c *Cache) await(ctx context.Context, entry *Entry, deadline time.Time) ([]byte, error) {
	atomic.AddInt32(&entry.waiters, 1)
	defer atomic.AddInt32(&entry.waiters, -1)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-entry.done:
		if entry.Status == Failed {
			return nil, apierr.Wrap(apierr.Upstream, "tts synthesis failed", entry.Err)
		}
		return entry.Audio, nil
	case <-timer.C:
		return nil, apierr.New(apierr.Timeout, "timed out waiting for tts synthesis")
	case <-ctx.Done():
		return nil, apierr.Wrap(apierr.Cancelled, "request cancelled while waiting for tts synthesis", ctx.Err())
	}
}

// synthesizeAndStore runs outside the cache mutex and resolves entry on
// completion, discarding the result if the entry was cleared meanwhile.
func (c *Cache) synthesizeAndStore(entry *Entry, requestTimeout time.Duration) {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	audio, err := c.synth.Synthesize(context.Background(), entry.Model, entry.Voice, entry.Text, time.Now().Add(requestTimeout))

	c.mu.Lock()
	current, stillPresent := c.entries.Get(entry.Fingerprint)
	if !stillPresent || current != entry {
		// cache was cleared or the entry was superseded: store nothing, but
		// still resolve the entry so any waiters on it are woken
		if err != nil {
			entry.Status, entry.Err = Failed, err
		} else {
			entry.Status, entry.Audio, entry.CompletedAt = Completed, audio, time.Now()
		}
		c.mu.Unlock()
		close(entry.done)
		return
	}

	if err != nil {
		entry.Status = Failed
		entry.Err = err
		c.entries.Delete(entry.Fingerprint)
		metrics.CacheSize.Set(float64(c.entries.Len()))
	} else {
		entry.Status = Completed
		entry.Audio = audio
		entry.CompletedAt = time.Now()
		c.touchLocked(entry.Fingerprint, entry)
		c.evictOverflowLocked()
	}
	c.mu.Unlock()

	close(entry.done)
}

// touchLocked moves key to the LRU tail by deleting and re-inserting it —
// the ordered map preserves a key's original position across an in-place
// Set, so an explicit delete+set is needed to model "most recently used".
// Caller holds c.mu.
func (c *Cache) touchLocked(key string, entry *Entry) {
	c.entries.Delete(key)
	c.entries.Set(key, entry)
}

// evictOverflowLocked evicts the oldest Completed/Failed entries until
// within maxSize, skipping over (never evicting) Pending entries — a stuck
// in-flight synthesis at the LRU head must not block eviction of anything
// behind it. Caller holds c.mu.
func (c *Cache) evictOverflowLocked() {
	if c.maxSize <= 0 {
		return
	}
	for c.entries.Len() > c.maxSize {
		pair := c.entries.Oldest()
		for pair != nil && pair.Value.Status == Pending {
			pair = pair.Next()
		}
		if pair == nil {
			break
		}
		c.entries.Delete(pair.Key)
		c.evictionsLRU++
		metrics.CacheEvictionsTotal.WithLabelValues("lru").Inc()
	}
	metrics.CacheSize.Set(float64(c.entries.Len()))
}

func (c *Cache) sweepLoop() {
	interval := c.ttl / 10
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []string
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		e := pair.Value
		if e.Status == Completed && now.Sub(e.CreatedAt) > c.ttl {
			expired = append(expired, pair.Key)
		}
	}
	for _, key := range expired {
		c.entries.Delete(key)
		c.evictionsTTL++
		metrics.CacheEvictionsTotal.WithLabelValues("ttl").Inc()
	}
	metrics.CacheSize.Set(float64(c.entries.Len()))
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := 0
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Status == Pending {
			pending++
		}
	}
	return Stats{
		Size:         c.entries.Len(),
		Hits:         c.hits,
		Misses:       c.misses,
		Pending:      pending,
		EvictionsLRU: c.evictionsLRU,
		EvictionsTTL: c.evictionsTTL,
	}
}

// Clear drops every entry. In-flight synthesizers are left to finish in the
// background; synthesizeAndStore discards their results once it notices the
// entry it was working on is gone.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entries.Len()
	c.entries = orderedmap.New[string, *Entry]()
	metrics.CacheSize.Set(0)
	return n
}
