package fetch

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

// CachingSource wraps a Source with a bounded LRU of raw transactions.
// Confirmed transactions are immutable, so entries never expire; they are
// only displaced by newer ones. Errors are not cached, so a transient
// failure does not poison later lookups.
type CachingSource struct {
	inner Source
	cache *lru.Cache[types.Hash, *tx.Transaction]
}

// NewCachingSource wraps inner with an LRU of the given size.
func NewCachingSource(inner Source, size int) (*CachingSource, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[types.Hash, *tx.Transaction](size)
	if err != nil {
		return nil, err
	}
	return &CachingSource{inner: inner, cache: cache}, nil
}

// Fetch implements Source.
func (c *CachingSource) Fetch(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	if t, ok := c.cache.Get(txid); ok {
		return t, nil
	}
	t, err := c.inner.Fetch(ctx, txid)
	if err != nil {
		return nil, err
	}
	c.cache.Add(txid, t)
	return t, nil
}

// Len returns the number of cached transactions.
func (c *CachingSource) Len() int {
	return c.cache.Len()
}
