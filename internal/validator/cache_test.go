package validator

import (
	"testing"

	"github.com/simpleledger/slpd/internal/storage"
	"github.com/simpleledger/slpd/pkg/types"
)

func mkVerdict(n byte, validity Validity) *Verdict {
	var txid types.Hash
	txid[0] = n
	return &Verdict{
		TxID:     txid,
		TokenID:  types.TokenID{0xEE},
		Validity: validity,
		Outputs:  []uint64{0, 100},
	}
}

func TestCache_PutLookup(t *testing.T) {
	c := NewCache(nil, 10)

	v := mkVerdict(1, Valid)
	c.Put(v)

	got, ok := c.Lookup(v.TxID)
	if !ok {
		t.Fatal("verdict not found after Put")
	}
	if got.Validity != Valid || got.OutputAmount(1) != 100 {
		t.Fatalf("got %+v", got)
	}

	if _, ok := c.Lookup(types.Hash{0xFF}); ok {
		t.Fatal("found verdict that was never stored")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 1/1", st.Hits, st.Misses)
	}
}

func TestCache_RefusesUnknown(t *testing.T) {
	c := NewCache(nil, 10)
	c.Put(mkVerdict(1, Unknown))
	if c.Len() != 0 {
		t.Fatal("unknown verdict was cached")
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(nil, 3)
	for i := byte(1); i <= 3; i++ {
		c.Put(mkVerdict(i, Valid))
	}

	// Touch 1 so 2 becomes the eviction candidate.
	if _, ok := c.Lookup(mkVerdict(1, Valid).TxID); !ok {
		t.Fatal("entry 1 missing")
	}
	c.Put(mkVerdict(4, Valid))

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	if _, ok := c.Lookup(mkVerdict(2, Valid).TxID); ok {
		t.Fatal("least recently used entry survived")
	}
	if _, ok := c.Lookup(mkVerdict(1, Valid).TxID); !ok {
		t.Fatal("recently used entry evicted")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestCache_PinnedEntriesSurviveEviction(t *testing.T) {
	c := NewCache(nil, 2)
	v1, v2 := mkVerdict(1, Valid), mkVerdict(2, Invalid)
	c.Put(v1)
	c.Put(v2)

	if _, ok := c.LookupPin(v1.TxID); !ok {
		t.Fatal("pin failed")
	}
	if _, ok := c.LookupPin(v2.TxID); !ok {
		t.Fatal("pin failed")
	}

	// Both existing entries are pinned, so the insert itself becomes
	// the only eviction candidate.
	c.Put(mkVerdict(3, Valid))
	if _, ok := c.Lookup(v1.TxID); !ok {
		t.Fatal("pinned entry evicted")
	}
	if _, ok := c.Lookup(v2.TxID); !ok {
		t.Fatal("pinned entry evicted")
	}

	// Releasing the pins makes them evictable again.
	c.Unpin(v1.TxID)
	c.Unpin(v2.TxID)
	c.Put(mkVerdict(4, Valid))
	if c.Len() != 2 {
		t.Fatalf("len = %d after unpin, want 2", c.Len())
	}
}

func TestCache_EvictedVerdictReadmittedFromDisk(t *testing.T) {
	db := storage.NewMemory()
	c := NewCache(db, 2)
	v1 := mkVerdict(1, Valid)
	c.Put(v1)
	c.Put(mkVerdict(2, Valid))
	c.Put(mkVerdict(3, Valid)) // Evicts v1, persisting it on the way out.

	got, ok := c.Lookup(v1.TxID)
	if !ok {
		t.Fatal("evicted verdict lost despite storage")
	}
	if got.Validity != Valid || got.OutputAmount(1) != 100 {
		t.Fatalf("readmitted verdict mangled: %+v", got)
	}
}

func TestCache_FlushAndLoad(t *testing.T) {
	db := storage.NewMemory()
	c := NewCache(db, 10)

	genesis := mkVerdict(1, Valid)
	genesis.TokenID = types.TokenID(genesis.TxID) // Genesis roots its own token.
	c.Put(genesis)
	c.Put(mkVerdict(2, Invalid))

	n, err := c.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 3 { // Two verdicts plus one genesis registration.
		t.Fatalf("flushed %d records, want 3", n)
	}

	// A second flush has nothing dirty to write.
	n, err = c.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 0 {
		t.Fatalf("reflushed %d records, want 0", n)
	}

	fresh := NewCache(db, 10)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fresh.Len() != 2 {
		t.Fatalf("loaded %d verdicts, want 2", fresh.Len())
	}
	if txid, ok := fresh.GenesisFor(genesis.TokenID); !ok || txid != genesis.TxID {
		t.Fatalf("genesis registry not restored: %s %v", txid, ok)
	}
}

func TestCache_GenesisRegistry(t *testing.T) {
	c := NewCache(nil, 10)

	v := mkVerdict(7, Valid)
	v.TokenID = types.TokenID(v.TxID)
	c.Put(v)

	txid, ok := c.GenesisFor(v.TokenID)
	if !ok || txid != v.TxID {
		t.Fatalf("GenesisFor = %s %v", txid, ok)
	}

	// Non-genesis verdicts never register.
	other := mkVerdict(8, Valid)
	c.Put(other)
	if _, ok := c.GenesisFor(other.TokenID); ok {
		t.Fatal("send verdict registered a genesis")
	}
}
