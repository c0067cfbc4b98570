package correlation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/CardSorting/hana-relay/core/infra/logging"
	"github.com/CardSorting/hana-relay/core/infra/metrics"
)

const (
	defaultTTL           = time.Hour
	defaultSweepInterval = 30 * time.Minute
)

// ErrInvalidEntry rejects malformed cache writes.
var ErrInvalidEntry = errors.New("invalid correlation entry")

// Entry holds everything needed to route a future reply back to a requester.
type Entry struct {
	ChannelID  string
	OriginType string
	Query      string
	GuildID    string
	ExpiresAt  time.Time
}

// Options configures a Cache. Zero values fall back to defaults.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         Clock
	Metrics       metrics.Metrics
}

// Cache maps a requester id to the origin of their pending request. At most
// one live entry exists per requester; writes while an unexpired entry exists
// are silently dropped.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	clock   Clock
	metrics metrics.Metrics

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a Cache and starts its background sweep.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     opts.TTL,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop(opts.SweepInterval)
	return c
}

// SetIfAbsent records the requester's origin unless a live entry already
// exists. The write is a silent no-op on conflict so a second in-flight
// request cannot redirect the first one's reply.
func (c *Cache) SetIfAbsent(userID, channelID, originType, query, guildID string) error {
	if !validField(userID) || !validField(channelID) || !validField(originType) {
		return ErrInvalidEntry
	}
	if guildID != "" && !validField(guildID) {
		return ErrInvalidEntry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if existing, ok := c.entries[userID]; ok && existing.ExpiresAt.After(now) {
		return nil
	}
	c.entries[userID] = Entry{
		ChannelID:  channelID,
		OriginType: originType,
		Query:      query,
		GuildID:    guildID,
		ExpiresAt:  now.Add(c.ttl),
	}
	return nil
}

// Get returns the live entry for a requester. An expired entry is removed on
// read and reported as a miss.
func (c *Cache) Get(userID string) (Entry, bool) {
	if !validField(userID) {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return Entry{}, false
	}
	if !entry.ExpiresAt.After(c.clock.Now()) {
		delete(c.entries, userID)
		return Entry{}, false
	}
	return entry, true
}

// ChannelID returns the delivery channel recorded for a requester, or "".
func (c *Cache) ChannelID(userID string) string {
	entry, ok := c.Get(userID)
	if !ok {
		return ""
	}
	return entry.ChannelID
}

// Query returns the original query recorded for a requester, or "".
func (c *Cache) Query(userID string) string {
	entry, ok := c.Get(userID)
	if !ok {
		return ""
	}
	return entry.Query
}

// Clear drops the requester's entry regardless of expiry.
func (c *Cache) Clear(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	logging.Debug("correlation", "entry cleared", "user_id", userID)
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns the eviction count. It is the
// only cleanup path for requesters whose reply never arrives.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.clock.Now()
	evicted := 0
	for userID, entry := range c.entries {
		if !entry.ExpiresAt.After(now) {
			delete(c.entries, userID)
			evicted++
		}
	}
	c.mu.Unlock()
	if evicted > 0 {
		c.metrics.AddSweepEvictions(evicted)
		logging.Info("correlation", "sweep evicted entries", "count", evicted)
	}
	return evicted
}

// Close stops the background sweep. The cache remains usable afterwards.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

func validField(s string) bool {
	return strings.TrimSpace(s) != ""
}
