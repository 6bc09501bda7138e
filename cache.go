package apireq

import (
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is one stored response. TTL is the CacheTime of the call that
// stored it and only drives Sweep; lookups apply their own CacheTime.
type CacheEntry struct {
	Response *Response
	StoredAt time.Time
	TTL      time.Duration
}

// CacheStore holds cache entries. Implementations must be safe for
// concurrent use and must hand back the stored *Response unchanged.
type CacheStore interface {
	Get(key string) (*CacheEntry, bool)
	// SetIfAbsent stores entry unless key is present and reports whether it
	// stored.
	SetIfAbsent(key string, entry *CacheEntry) bool
	Delete(key string)
	// CompareAndDelete deletes key only while it still holds entry and
	// reports whether it deleted.
	CompareAndDelete(key string, entry *CacheEntry) bool
	Range(fn func(key string, entry *CacheEntry) bool)
	Len() int
	Clear()
}

// InMemoryCache is a sharded map. Entries live until deleted.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	return entry, exists
}

func (c *InMemoryCache) SetIfAbsent(key string, entry *CacheEntry) bool {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.store[key]; exists {
		return false
	}
	shard.store[key] = entry
	return true
}

func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

func (c *InMemoryCache) CompareAndDelete(key string, entry *CacheEntry) bool {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if current, exists := shard.store[key]; !exists || current != entry {
		return false
	}
	delete(shard.store, key)
	return true
}

// Range calls fn for every entry until fn returns false. fn may delete
// from the cache.
func (c *InMemoryCache) Range(fn func(key string, entry *CacheEntry) bool) {
	for _, shard := range c.shards {
		shard.mu.RLock()
		keys := make([]string, 0, len(shard.store))
		entries := make([]*CacheEntry, 0, len(shard.store))
		for k, e := range shard.store {
			keys = append(keys, k)
			entries = append(entries, e)
		}
		shard.mu.RUnlock()

		for i := range keys {
			if !fn(keys[i], entries[i]) {
				return
			}
		}
	}
}

func (c *InMemoryCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}

func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

type decisionKind int

const (
	decisionProceed decisionKind = iota
	decisionShortCircuit
	decisionReject
)

// Decision is the outcome of a pre-dispatch hook.
type Decision struct {
	kind     decisionKind
	response *Response
	err      error
}

// Proceed lets the call continue to the network.
func Proceed() Decision { return Decision{kind: decisionProceed} }

// ShortCircuit answers the call with resp without touching the network.
func ShortCircuit(resp *Response) Decision {
	return Decision{kind: decisionShortCircuit, response: resp}
}

// Reject fails the call with err.
func Reject(err error) Decision { return Decision{kind: decisionReject, err: err} }

func (d Decision) IsProceed() bool      { return d.kind == decisionProceed }
func (d Decision) IsShortCircuit() bool { return d.kind == decisionShortCircuit }
func (d Decision) IsReject() bool       { return d.kind == decisionReject }
func (d Decision) Response() *Response  { return d.response }
func (d Decision) Err() error           { return d.err }

// CacheController serves and stores GET responses for calls that set
// Cache. Two calls that miss at the same time both reach the network and
// the first to complete is stored.
type CacheController struct {
	store CacheStore
	uri   func(*Request) string
	now   func() time.Time
	obs   *observer
}

// NewCacheController returns a controller over store keyed with uri. A nil
// store gets a fresh InMemoryCache and a nil uri resolves like HTTPTransport.
func NewCacheController(store CacheStore, uri func(*Request) string) *CacheController {
	if store == nil {
		store = NewInMemoryCache()
	}
	if uri == nil {
		uri = buildURI
	}
	return &CacheController{
		store: store,
		uri:   uri,
		now:   time.Now,
		obs:   &observer{debug: DefaultDebugConfig()},
	}
}

// Validate reports a configuration error when req asks for caching on a
// method other than GET.
func (cc *CacheController) Validate(req *Request) error {
	if req.Options.Cache && req.Method != http.MethodGet {
		return newConfigurationError(req.Method+" "+req.URL, ErrCacheMethod)
	}
	return nil
}

// Key returns the cache key of req.
func (cc *CacheController) Key(req *Request) string {
	return req.Method + "::" + cc.uri(req)
}

// BeforeDispatch looks req up. A stored entry older than a positive
// CacheTime is dropped and the call proceeds; with CacheTime zero or
// negative a stored entry is always served.
func (cc *CacheController) BeforeDispatch(req *Request) Decision {
	if !req.Options.Cache {
		return Proceed()
	}
	if err := cc.Validate(req); err != nil {
		return Reject(err)
	}

	key := cc.Key(req)
	entry, ok := cc.store.Get(key)
	if !ok {
		cc.miss(req, key, "absent")
		return Proceed()
	}

	ttl := req.Options.CacheTime
	if ttl > 0 && cc.now().Sub(entry.StoredAt) > ttl {
		cc.store.CompareAndDelete(key, entry)
		cc.obs.metrics.RecordCacheSize(cc.store.Len())
		cc.miss(req, key, "expired")
		return Proceed()
	}

	cc.obs.metrics.RecordCacheHit(req.Method)
	if cc.obs.logs(cc.obs.debug.LogCache) {
		cc.obs.logger.Debug("Cache hit", "requestID", req.id, "cacheKey", key)
	}
	return ShortCircuit(entry.Response)
}

// AfterResponse stores resp unless an entry for req already exists.
func (cc *CacheController) AfterResponse(req *Request, resp *Response) {
	if !req.Options.Cache || req.Method != http.MethodGet || resp == nil {
		return
	}

	key := cc.Key(req)
	stored := cc.store.SetIfAbsent(key, &CacheEntry{
		Response: resp,
		StoredAt: cc.now(),
		TTL:      req.Options.CacheTime,
	})
	if !stored {
		return
	}
	cc.obs.metrics.RecordCacheSize(cc.store.Len())
	if cc.obs.logs(cc.obs.debug.LogCache) {
		cc.obs.logger.Debug("Cache store", "requestID", req.id, "cacheKey", key, "ttl", req.Options.CacheTime)
	}
}

// Sweep deletes entries whose storing TTL has elapsed and returns how many
// were removed. Entries stored without a positive TTL are kept.
func (cc *CacheController) Sweep() int {
	now := cc.now()
	removed := 0
	cc.store.Range(func(key string, entry *CacheEntry) bool {
		if entry.TTL > 0 && now.Sub(entry.StoredAt) > entry.TTL && cc.store.CompareAndDelete(key, entry) {
			removed++
		}
		return true
	})
	if removed > 0 {
		cc.obs.metrics.RecordCacheSize(cc.store.Len())
		if cc.obs.logs(cc.obs.debug.LogCache) {
			cc.obs.logger.Debug("Cache sweep", "removed", removed)
		}
	}
	return removed
}

// Len reports the number of stored entries.
func (cc *CacheController) Len() int {
	return cc.store.Len()
}

// Clear drops every entry.
func (cc *CacheController) Clear() {
	cc.store.Clear()
	cc.obs.metrics.RecordCacheSize(0)
}

// Invalidate drops the entry for req, if any.
func (cc *CacheController) Invalidate(req *Request) {
	cc.store.Delete(cc.Key(req))
	cc.obs.metrics.RecordCacheSize(cc.store.Len())
}

func (cc *CacheController) miss(req *Request, key, reason string) {
	cc.obs.metrics.RecordCacheMiss(req.Method)
	if cc.obs.logs(cc.obs.debug.LogCache) {
		cc.obs.logger.Debug("Cache miss", "requestID", req.id, "cacheKey", key, "reason", reason)
	}
}
