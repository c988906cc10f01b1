package validator

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	slog "github.com/simpleledger/slpd/internal/log"
	"github.com/simpleledger/slpd/internal/metrics"
	"github.com/simpleledger/slpd/internal/storage"
	"github.com/simpleledger/slpd/pkg/types"
)

// Storage key layout.
var (
	prefixVerdict = []byte("v/") // v/<txid(32)> -> Verdict JSON
	prefixGenesis = []byte("g/") // g/<tokenID(32)> -> genesis txid(32)
)

var errStopIteration = errors.New("stop iteration")

// DefaultMaxEntries bounds the in-memory verdict cache when the
// configured limit is missing or nonsense.
const DefaultMaxEntries = 100_000

// cacheEntry tracks one cached verdict. pins counts validations currently
// relying on the verdict; a pinned entry is never evicted.
type cacheEntry struct {
	verdict *Verdict
	elem    *list.Element
	pins    int
	dirty   bool
}

// Cache holds final verdicts with LRU eviction and write-behind
// persistence. Unknown verdicts are rejected; only finality is worth
// remembering. The genesis registry maps each token id to the txid that
// established it and is persisted alongside the verdicts.
type Cache struct {
	mu           sync.Mutex
	maxEntries   int
	entries      map[types.Hash]*cacheEntry
	recency      *list.List // Front is most recently used; values are types.Hash.
	genesis      map[types.TokenID]types.Hash
	genesisDirty map[types.TokenID]struct{}
	db           storage.DB // nil disables persistence
	logger       zerolog.Logger

	hits      uint64
	misses    uint64
	evictions uint64
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Pinned     int    `json:"pinned"`
	Dirty      int    `json:"dirty"`
	Tokens     int    `json:"tokens"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

// NewCache creates a verdict cache. db may be nil for a purely in-memory
// cache.
func NewCache(db storage.DB, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		maxEntries:   maxEntries,
		entries:      make(map[types.Hash]*cacheEntry),
		recency:      list.New(),
		genesis:      make(map[types.TokenID]types.Hash),
		genesisDirty: make(map[types.TokenID]struct{}),
		db:           db,
		logger:       slog.Cache,
	}
}

// Load warms the cache from storage. Verdicts beyond the entry limit stay
// on disk and are found again through normal validation.
func (c *Cache) Load() error {
	if c.db == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.ForEach(prefixGenesis, func(key, value []byte) error {
		if len(key) < len(prefixGenesis)+types.HashSize || len(value) != types.HashSize {
			return nil // Malformed, skip.
		}
		var id types.TokenID
		copy(id[:], key[len(prefixGenesis):])
		var txid types.Hash
		copy(txid[:], value)
		c.genesis[id] = txid
		return nil
	})
	if err != nil {
		return fmt.Errorf("load genesis registry: %w", err)
	}

	loaded := 0
	err = c.db.ForEach(prefixVerdict, func(key, value []byte) error {
		if loaded >= c.maxEntries {
			return errStopIteration
		}
		var v Verdict
		if jerr := json.Unmarshal(value, &v); jerr != nil {
			return nil // Skip corrupt entries.
		}
		if !v.Final() {
			return nil
		}
		c.entries[v.TxID] = &cacheEntry{
			verdict: &v,
			elem:    c.recency.PushBack(v.TxID),
		}
		loaded++
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return fmt.Errorf("load verdicts: %w", err)
	}

	metrics.SetCacheEntries(len(c.entries))
	c.logger.Info().
		Int("verdicts", loaded).
		Int("tokens", len(c.genesis)).
		Msg("cache loaded")
	return nil
}

// Lookup returns the cached verdict for a txid, bumping its recency.
func (c *Cache) Lookup(txid types.Hash) (*Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(txid)
}

// LookupPin is Lookup plus a pin: the entry survives eviction until the
// matching Unpin.
func (c *Cache) LookupPin(txid types.Hash) (*Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lookupLocked(txid)
	if ok {
		// The entry can already be gone again if readmission evicted it
		// under full pin pressure; the caller still gets the verdict.
		if e, live := c.entries[txid]; live {
			e.pins++
		}
	}
	return v, ok
}

func (c *Cache) lookupLocked(txid types.Hash) (*Verdict, bool) {
	e, ok := c.entries[txid]
	if !ok {
		if v := c.readBackLocked(txid); v != nil {
			c.hits++
			metrics.RecordCacheHit()
			return v, true
		}
		c.misses++
		metrics.RecordCacheMiss()
		return nil, false
	}
	c.hits++
	metrics.RecordCacheHit()
	c.recency.MoveToFront(e.elem)
	return e.verdict, true
}

// readBackLocked readmits an evicted verdict from storage, or returns nil.
func (c *Cache) readBackLocked(txid types.Hash) *Verdict {
	if c.db == nil {
		return nil
	}
	key := make([]byte, len(prefixVerdict)+types.HashSize)
	copy(key, prefixVerdict)
	copy(key[len(prefixVerdict):], txid[:])
	data, err := c.db.Get(key)
	if err != nil {
		return nil
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil || !v.Final() {
		return nil
	}
	c.entries[txid] = &cacheEntry{
		verdict: &v,
		elem:    c.recency.PushFront(txid),
	}
	c.evictLocked()
	metrics.SetCacheEntries(len(c.entries))
	return &v
}

// Unpin releases a pin taken by LookupPin. Unpinning an evicted or
// unknown txid is a no-op.
func (c *Cache) Unpin(txid types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[txid]; ok && e.pins > 0 {
		e.pins--
	}
}

// Put caches a final verdict. Unknown verdicts are refused: they would
// poison later deep queries. A valid genesis verdict also registers its
// token id.
func (c *Cache) Put(v *Verdict) {
	if !v.Final() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[v.TxID]; exists {
		return // Final verdicts never change.
	}

	c.entries[v.TxID] = &cacheEntry{
		verdict: v,
		elem:    c.recency.PushFront(v.TxID),
		dirty:   true,
	}

	if v.Validity == Valid && types.Hash(v.TokenID) == v.TxID {
		if _, known := c.genesis[v.TokenID]; !known {
			c.genesis[v.TokenID] = v.TxID
			c.genesisDirty[v.TokenID] = struct{}{}
		}
	}

	c.evictLocked()
	metrics.SetCacheEntries(len(c.entries))
}

// GenesisFor returns the txid that established a token, if known.
func (c *Cache) GenesisFor(id types.TokenID) (types.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txid, ok := c.genesis[id]
	return txid, ok
}

// evictLocked drops least-recently-used unpinned entries until the cache
// is within bounds. Dirty entries are persisted before they go; pins can
// hold the cache above its limit, which is fine for the duration of the
// validations holding them.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		evicted := false
		for elem := c.recency.Back(); elem != nil; elem = elem.Prev() {
			txid := elem.Value.(types.Hash)
			e := c.entries[txid]
			if e.pins > 0 {
				continue
			}
			if e.dirty {
				if err := c.persistVerdict(e.verdict); err != nil {
					c.logger.Warn().Err(err).
						Str("txid", txid.String()).
						Msg("evicting unflushed verdict")
				}
			}
			c.recency.Remove(elem)
			delete(c.entries, txid)
			c.evictions++
			metrics.RecordCacheEviction()
			evicted = true
			break
		}
		if !evicted {
			return // Everything over the limit is pinned.
		}
	}
}

// Flush persists all dirty verdicts and genesis registrations. Returns
// the number of records written.
func (c *Cache) Flush() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return 0, nil
	}

	written := 0
	for _, e := range c.entries {
		if !e.dirty {
			continue
		}
		if err := c.persistVerdict(e.verdict); err != nil {
			return written, err
		}
		e.dirty = false
		written++
	}
	for id := range c.genesisDirty {
		key := make([]byte, len(prefixGenesis)+types.HashSize)
		copy(key, prefixGenesis)
		copy(key[len(prefixGenesis):], id[:])
		txid := c.genesis[id]
		if err := c.db.Put(key, txid[:]); err != nil {
			return written, fmt.Errorf("flush genesis: %w", err)
		}
		delete(c.genesisDirty, id)
		written++
	}
	return written, nil
}

func (c *Cache) persistVerdict(v *Verdict) error {
	if c.db == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("verdict marshal: %w", err)
	}
	key := make([]byte, len(prefixVerdict)+types.HashSize)
	copy(key, prefixVerdict)
	copy(key[len(prefixVerdict):], v.TxID[:])
	if err := c.db.Put(key, data); err != nil {
		return fmt.Errorf("verdict put: %w", err)
	}
	return nil
}

// Len returns the number of cached verdicts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	pinned, dirty := 0, 0
	for _, e := range c.entries {
		if e.pins > 0 {
			pinned++
		}
		if e.dirty {
			dirty++
		}
	}
	return CacheStats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		Pinned:     pinned,
		Dirty:      dirty,
		Tokens:     len(c.genesis),
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}
