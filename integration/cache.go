package integration

import (
	"log/slog"
	"sync"
	"time"
)

// ClientKind distinguishes the SDK clients cached per workspace.
type ClientKind string

const (
	KindCloudWatchLogs    ClientKind = "cloudwatch_logs"
	KindCloudWatchMetrics ClientKind = "cloudwatch_metrics"
	KindXRay              ClientKind = "xray"
)

// reuseMargin is how much validity a cached client must have left to be
// handed out. Anything closer to expiry is evicted so the caller rebuilds
// it with fresh credentials.
const reuseMargin = 5 * time.Minute

type cacheKey struct {
	workspaceID string
	kind        ClientKind
}

type cacheEntry struct {
	client     any
	expiration time.Time
}

// ClientCache holds constructed SDK clients keyed by workspace and kind so
// repeated collector calls within one credential window reuse connections.
// Concurrent writers race benignly: last write wins, earlier clients are
// garbage collected.
type ClientCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewClientCache creates an empty cache.
func NewClientCache(logger *slog.Logger) *ClientCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCache{
		entries: make(map[cacheKey]cacheEntry),
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached client for (workspaceID, kind) if it has more than
// reuseMargin of validity left. Stale entries are evicted on access.
func (c *ClientCache) Get(workspaceID string, kind ClientKind) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{workspaceID: workspaceID, kind: kind}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if !entry.expiration.After(c.now().Add(reuseMargin)) {
		delete(c.entries, key)
		c.logger.Debug("evicted expiring client",
			"workspace_id", workspaceID,
			"kind", string(kind))
		return nil, false
	}

	return entry.client, true
}

// Put stores a client alongside the expiration of the credentials it was
// built with.
func (c *ClientCache) Put(workspaceID string, kind ClientKind, client any, expiration time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{workspaceID: workspaceID, kind: kind}] = cacheEntry{
		client:     client,
		expiration: expiration,
	}
}

// Clear removes cached clients. Empty workspaceID matches every workspace;
// empty kind matches every kind. Clear("", "") empties the cache.
func (c *ClientCache) Clear(workspaceID string, kind ClientKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if workspaceID != "" && key.workspaceID != workspaceID {
			continue
		}
		if kind != "" && key.kind != kind {
			continue
		}
		delete(c.entries, key)
		removed++
	}
	return removed
}

// Len reports the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
