// Package fetch supplies raw transactions to the DAG builder.
//
// The daemon never talks to the chain directly; everything it knows about
// a transaction comes through a Source. The production source is a
// bitcoind-compatible node queried over JSON-RPC, wrapped in an LRU cache
// so shared ancestors are fetched once per process.
package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

// Fetch errors.
var (
	// ErrNotFound means the source authoritatively does not know the
	// transaction. Not retryable.
	ErrNotFound = errors.New("transaction not found")
	// ErrUnavailable means the source could not answer (network failure,
	// timeout). Retryable; never a statement about validity.
	ErrUnavailable = errors.New("transaction source unavailable")
)

// Source supplies confirmed transactions by id.
type Source interface {
	// Fetch returns the transaction with the given id. The returned
	// transaction's TxID always equals txid.
	Fetch(ctx context.Context, txid types.Hash) (*tx.Transaction, error)
}

// MemorySource is an in-memory Source for tests and offline tooling.
type MemorySource struct {
	mu   sync.RWMutex
	txs  map[types.Hash]*tx.Transaction
	errs map[types.Hash]error

	fetchCount map[types.Hash]int
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		txs:        make(map[types.Hash]*tx.Transaction),
		errs:       make(map[types.Hash]error),
		fetchCount: make(map[types.Hash]int),
	}
}

// Add registers a transaction under its TxID.
func (m *MemorySource) Add(t *tx.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[t.TxID] = t
}

// Fail makes Fetch return err for the given txid.
func (m *MemorySource) Fail(txid types.Hash, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[txid] = err
}

// FetchCount returns how many times the given txid was fetched.
func (m *MemorySource) FetchCount(txid types.Hash) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchCount[txid]
}

// Fetch implements Source.
func (m *MemorySource) Fetch(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCount[txid]++
	if err, ok := m.errs[txid]; ok {
		return nil, err
	}
	t, ok := m.txs[txid]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}
