package validator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/simpleledger/slpd/internal/dag"
	"github.com/simpleledger/slpd/internal/fetch"
	"github.com/simpleledger/slpd/internal/slp"
	"github.com/simpleledger/slpd/internal/storage"
	"github.com/simpleledger/slpd/internal/token"
	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

func hashN(n byte) types.Hash {
	var h types.Hash
	h[0] = n
	return h
}

func slpTx(txid types.Hash, script []byte, parents []types.Outpoint, outputs int) *tx.Transaction {
	t := &tx.Transaction{TxID: txid}
	for _, p := range parents {
		t.Inputs = append(t.Inputs, tx.Input{PrevOut: p})
	}
	if len(parents) == 0 {
		t.Inputs = append(t.Inputs, tx.Input{})
	}
	t.Outputs = append(t.Outputs, tx.Output{Value: 0, Script: script})
	for i := 0; i < outputs; i++ {
		t.Outputs = append(t.Outputs, tx.Output{Value: 546, Script: []byte{0x76}})
	}
	return t
}

func out(txid types.Hash, index uint32) types.Outpoint {
	return types.Outpoint{TxID: txid, Index: index}
}

func newTestEngine(src fetch.Source, maxDepth int) *Engine {
	db := storage.NewMemory()
	return NewEngine(src, NewCache(db, 1000), token.NewStore(db), maxDepth)
}

func TestValidateGenesis(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis := hashN(1)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test Token", "https://example.com", nil, 4, 2, 2_100_000_000_000_000), nil, 2))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), genesis, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.IsValid() {
		t.Fatalf("genesis judged %s (%s)", v.Validity, v.Reason)
	}
	if v.TokenID != types.TokenID(genesis) {
		t.Fatalf("token id = %s", types.Hash(v.TokenID))
	}
	if v.OutputAmount(1) != 2_100_000_000_000_000 {
		t.Fatalf("vout 1 amount = %d", v.OutputAmount(1))
	}
	if !v.HasBatonAt(2) {
		t.Fatalf("baton not placed at vout 2: %+v", v)
	}

	// Metadata is recorded on first valid judgement.
	meta, err := e.tokens.Get(types.TokenID(genesis))
	if err != nil {
		t.Fatalf("metadata get: %v", err)
	}
	if meta.Ticker != "TST" || meta.InitialQuantity != 2_100_000_000_000_000 {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestValidateGenesisDuplicateTokenID(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis := hashN(1)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test Token", "", nil, 0, 0, 100), nil, 1))

	// The persisted registry says a different txid already established
	// this token id: the transaction source is contradicting history.
	registered := hashN(9)
	db := storage.NewMemory()
	key := append(append([]byte{}, prefixGenesis...), genesis[:]...)
	if err := db.Put(key, registered[:]); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	cache := NewCache(db, 1000)
	if err := cache.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	e := NewEngine(src, cache, token.NewStore(db), 0)
	v, err := e.Validate(context.Background(), genesis, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Validity != Invalid || v.Reason != ReasonDuplicateGenesis {
		t.Fatalf("verdict = %s (%s), want invalid (%s)", v.Validity, v.Reason, ReasonDuplicateGenesis)
	}

	// The original claim keeps the token id.
	reg, ok := cache.GenesisFor(types.TokenID(genesis))
	if !ok || reg != registered {
		t.Fatalf("registry = %v %v, want %s", reg, ok, registered)
	}
}

func TestValidateSendChain(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, sendB := hashN(1), hashN(2), hashN(3)
	const supply = 2_100_000_000_000_000

	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, supply), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{1, supply - 1}), []types.Outpoint{out(genesis, 1)}, 2))
	src.Add(slpTx(sendB, slp.SendScript(genesis, []uint64{1}), []types.Outpoint{out(sendA, 1)}, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), sendB, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.IsValid() {
		t.Fatalf("send judged %s (%s)", v.Validity, v.Reason)
	}
	if v.OutputAmount(1) != 1 || v.Burned != 0 {
		t.Fatalf("amounts off: %+v", v)
	}

	// The whole ancestry got final verdicts along the way.
	for _, id := range []types.Hash{genesis, sendA} {
		if cached, ok := e.cache.Lookup(id); !ok || !cached.IsValid() {
			t.Fatalf("ancestor %s not cached valid", id)
		}
	}
}

func TestValidateIdempotent(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, sendB := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(genesis, 1)}, 1))
	src.Add(slpTx(sendB, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(sendA, 1)}, 1))

	e := newTestEngine(src, 0)
	first, err := e.Validate(context.Background(), sendB, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	second, err := e.Validate(context.Background(), sendB, false)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if first.Validity != second.Validity {
		t.Fatalf("verdict changed between runs: %s then %s", first.Validity, second.Validity)
	}
	for _, id := range []types.Hash{genesis, sendA, sendB} {
		if n := src.FetchCount(id); n != 1 {
			t.Fatalf("%s fetched %d times, want 1", id, n)
		}
	}
}

func TestValidateConcurrent(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, sendB := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(genesis, 1)}, 1))
	src.Add(slpTx(sendB, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(sendA, 1)}, 1))

	e := newTestEngine(src, 0)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*Verdict, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Validate(context.Background(), sendB, false)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].IsValid() {
			t.Fatalf("caller %d got %s", i, results[i].Validity)
		}
	}
	// Coalescing keeps the source at one fetch per transaction.
	for _, id := range []types.Hash{genesis, sendA, sendB} {
		if n := src.FetchCount(id); n != 1 {
			t.Fatalf("%s fetched %d times under concurrency", id, n)
		}
	}
}

func TestValidateMint(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, mintA, mintB, rogue := hashN(1), hashN(2), hashN(3), hashN(4)

	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 2, 100), nil, 2))
	// mintA consumes the genesis baton at vout 2 and passes it on.
	src.Add(slpTx(mintA, slp.MintScript(genesis, 2, 50), []types.Outpoint{out(genesis, 2)}, 2))
	// mintB chains off mintA's baton.
	src.Add(slpTx(mintB, slp.MintScript(genesis, 2, 25), []types.Outpoint{out(mintA, 2)}, 2))
	// rogue spends a plain token output, not the baton.
	src.Add(slpTx(rogue, slp.MintScript(genesis, 2, 1000), []types.Outpoint{out(genesis, 1)}, 2))

	e := newTestEngine(src, 0)

	v, err := e.Validate(context.Background(), mintB, false)
	if err != nil {
		t.Fatalf("Validate mintB: %v", err)
	}
	if !v.IsValid() || v.OutputAmount(1) != 25 || !v.HasBatonAt(2) {
		t.Fatalf("chained mint judged %s: %+v", v.Validity, v)
	}

	v, err = e.Validate(context.Background(), rogue, false)
	if err != nil {
		t.Fatalf("Validate rogue: %v", err)
	}
	if v.IsValid() || v.Reason != ReasonUnauthorizedMint {
		t.Fatalf("rogue mint judged %s (%s)", v.Validity, v.Reason)
	}
}

func TestValidateInsufficientInputs(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, greedy := hashN(1), hashN(2)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(greedy, slp.SendScript(genesis, []uint64{101}), []types.Outpoint{out(genesis, 1)}, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), greedy, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid() || v.Reason != ReasonInsufficientInputs {
		t.Fatalf("judged %s (%s), want invalid insufficient", v.Validity, v.Reason)
	}
}

func TestValidateBurn(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, burner := hashN(1), hashN(2)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(burner, slp.SendScript(genesis, []uint64{60}), []types.Outpoint{out(genesis, 1)}, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), burner, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.IsValid() {
		t.Fatalf("burning send judged %s (%s)", v.Validity, v.Reason)
	}
	if v.Burned != 40 {
		t.Fatalf("burned = %d, want 40", v.Burned)
	}
}

func TestValidateQuantityOverflow(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, overflow := hashN(1), hashN(2)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(overflow, slp.SendScript(genesis, []uint64{math.MaxUint64, math.MaxUint64}),
		[]types.Outpoint{out(genesis, 1)}, 2))

	e := newTestEngine(src, 0)
	_, err := e.Validate(context.Background(), overflow, false)
	if !errors.Is(err, ErrQuantityOverflow) {
		t.Fatalf("got %v, want ErrQuantityOverflow", err)
	}
}

func TestValidateDepthLimited(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, sendB := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(genesis, 1)}, 1))
	src.Add(slpTx(sendB, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(sendA, 1)}, 1))

	// Depth 1 reaches sendA but truncates at the genesis.
	e := newTestEngine(src, 1)

	v, err := e.Validate(context.Background(), sendB, true)
	if err != nil {
		t.Fatalf("Validate limited: %v", err)
	}
	if v.Final() {
		t.Fatalf("truncated query came back final: %s", v.Validity)
	}
	if v.Reason != ReasonDepthExceeded {
		t.Fatalf("reason = %q", v.Reason)
	}
	if e.cache.Len() != 0 {
		t.Fatalf("unknown verdicts leaked into the cache: %d entries", e.cache.Len())
	}

	// The unrestricted query settles it, and settles it for good.
	v, err = e.Validate(context.Background(), sendB, false)
	if err != nil {
		t.Fatalf("Validate full: %v", err)
	}
	if !v.IsValid() {
		t.Fatalf("full query judged %s (%s)", v.Validity, v.Reason)
	}
	if cached, ok := e.cache.Lookup(sendB); !ok || !cached.IsValid() {
		t.Fatal("final verdict not cached")
	}
}

func TestValidateDepthLimitedProvablyInvalid(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, greedy := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(genesis, 1)}, 1))
	// Declares more than its input could ever carry, so even a truncated
	// walk can condemn it.
	src.Add(slpTx(greedy, slp.SendScript(genesis, []uint64{500}), []types.Outpoint{out(sendA, 1)}, 1))

	e := newTestEngine(src, 1)
	v, err := e.Validate(context.Background(), greedy, true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid() || v.Validity == Unknown {
		t.Fatalf("judged %s, want invalid despite truncation", v.Validity)
	}
	if v.Reason != ReasonInsufficientInputs {
		t.Fatalf("reason = %q", v.Reason)
	}
}

func TestValidateNonTokenTarget(t *testing.T) {
	src := fetch.NewMemorySource()
	plain := hashN(1)
	src.Add(slpTx(plain, []byte{0x76, 0xa9}, nil, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), plain, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid() || v.Reason != ReasonNotToken {
		t.Fatalf("judged %s (%s)", v.Validity, v.Reason)
	}
	if e.cache.Len() != 0 {
		t.Fatal("non-token verdict was cached")
	}
}

func TestValidateMalformedTarget(t *testing.T) {
	src := fetch.NewMemorySource()
	target := hashN(1)
	bad := append([]byte{0x6a, 0x04}, slp.LokadID...)
	src.Add(slpTx(target, bad, nil, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), target, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid() || v.Reason != ReasonMalformed {
		t.Fatalf("judged %s (%s)", v.Validity, v.Reason)
	}
	// Malformation is permanent, so it is worth caching.
	if _, ok := e.cache.Lookup(target); !ok {
		t.Fatal("malformed verdict not cached")
	}
}

func TestValidateForeignTokenInput(t *testing.T) {
	src := fetch.NewMemorySource()
	genesisA, genesisB, crossed := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesisA, slp.GenesisScript("AAA", "Token A", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(genesisB, slp.GenesisScript("BBB", "Token B", "", nil, 0, 0, 100), nil, 1))
	// Declares token A but funds itself with token B outputs.
	src.Add(slpTx(crossed, slp.SendScript(genesisA, []uint64{100}), []types.Outpoint{out(genesisB, 1)}, 1))

	e := newTestEngine(src, 0)
	v, err := e.Validate(context.Background(), crossed, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid() || v.Reason != ReasonInsufficientInputs {
		t.Fatalf("judged %s (%s)", v.Validity, v.Reason)
	}
}

func TestValidateStopsAtCachedAncestors(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, sendA, sendB := hashN(1), hashN(2), hashN(3)
	src.Add(slpTx(genesis, slp.GenesisScript("TST", "Test", "", nil, 0, 0, 100), nil, 1))
	src.Add(slpTx(sendA, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(genesis, 1)}, 1))
	src.Add(slpTx(sendB, slp.SendScript(genesis, []uint64{100}), []types.Outpoint{out(sendA, 1)}, 1))

	e := newTestEngine(src, 0)
	if _, err := e.Validate(context.Background(), sendA, false); err != nil {
		t.Fatalf("Validate sendA: %v", err)
	}
	if _, err := e.Validate(context.Background(), sendB, false); err != nil {
		t.Fatalf("Validate sendB: %v", err)
	}

	// sendB's walk stops at the cached sendA verdict.
	if n := src.FetchCount(genesis); n != 1 {
		t.Fatalf("genesis fetched %d times, want 1", n)
	}
	if n := src.FetchCount(sendA); n != 1 {
		t.Fatalf("sendA fetched %d times, want 1", n)
	}
}

func TestValidateUnresolvedAncestor(t *testing.T) {
	src := fetch.NewMemorySource()
	genesis, target := hashN(1), hashN(2)
	src.Add(slpTx(target, slp.SendScript(genesis, []uint64{1}), []types.Outpoint{out(genesis, 1)}, 1))

	e := newTestEngine(src, 0)
	_, err := e.Validate(context.Background(), target, false)
	if !errors.Is(err, dag.ErrUnresolvedAncestor) {
		t.Fatalf("got %v, want ErrUnresolvedAncestor", err)
	}
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Fatalf("cause not preserved: %v", err)
	}
}
