package validator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/simpleledger/slpd/internal/dag"
	"github.com/simpleledger/slpd/internal/fetch"
	slog "github.com/simpleledger/slpd/internal/log"
	"github.com/simpleledger/slpd/internal/metrics"
	"github.com/simpleledger/slpd/internal/slp"
	"github.com/simpleledger/slpd/internal/token"
	"github.com/simpleledger/slpd/pkg/types"
)

// DefaultMaxDepth caps ancestry traversal for depth-limited queries.
const DefaultMaxDepth = 1000

// Engine validates SLP transactions against their ancestor DAG.
//
// Concurrent validations of the same transaction are coalesced into a
// single resolution; followers receive the leader's verdict.
type Engine struct {
	cache    *Cache
	builder  *dag.Builder
	tokens   *token.Store // nil disables metadata recording
	maxDepth int
	sf       singleflight.Group
	logger   zerolog.Logger
}

// NewEngine creates a validation engine. maxDepth applies only to
// depth-limited queries; zero or negative selects DefaultMaxDepth.
func NewEngine(source fetch.Source, cache *Cache, tokens *token.Store, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{
		cache:    cache,
		builder:  dag.NewBuilder(source),
		tokens:   tokens,
		maxDepth: maxDepth,
		logger:   slog.Validator,
	}
}

// Cache exposes the engine's verdict cache.
func (e *Engine) Cache() *Cache { return e.cache }

// Validate judges a transaction. With limitDepth the ancestry walk stops
// at the configured depth and the verdict may come back Unknown; without
// it the walk always reaches a final verdict or fails with an error.
//
// Transactions that break protocol rules are not errors: they produce an
// Invalid verdict. Errors mean the judgement itself could not be made
// (unreachable ancestor, cyclic reference, quantity overflow).
func (e *Engine) Validate(ctx context.Context, txid types.Hash, limitDepth bool) (*Verdict, error) {
	start := time.Now()

	if v, ok := e.cache.Lookup(txid); ok {
		metrics.RecordValidation(v.Validity.String(), time.Since(start).Seconds())
		return v, nil
	}

	depth := 0
	if limitDepth {
		depth = e.maxDepth
	}

	// Coalesce concurrent queries for the same txid. The depth suffix
	// keeps a truncated run from answering an unlimited query.
	key := txid.String() + "/" + strconv.Itoa(depth)
	res, err, shared := e.sf.Do(key, func() (interface{}, error) {
		return e.run(ctx, txid, depth)
	})
	if err != nil {
		metrics.RecordValidation("error", time.Since(start).Seconds())
		return nil, err
	}

	v := res.(*Verdict)
	metrics.RecordValidation(v.Validity.String(), time.Since(start).Seconds())
	e.logger.Debug().
		Str("txid", txid.String()).
		Str("validity", v.Validity.String()).
		Bool("shared", shared).
		Dur("elapsed", time.Since(start)).
		Msg("validated")
	return v, nil
}

// run resolves the ancestor graph and judges it bottom-up. Cached
// verdicts discovered during resolution are pinned so eviction cannot
// pull them out from under the judgement.
func (e *Engine) run(ctx context.Context, txid types.Hash, depth int) (*Verdict, error) {
	if v, ok := e.cache.Lookup(txid); ok {
		return v, nil
	}

	pinned := make(map[types.Hash]*Verdict)
	defer func() {
		for id := range pinned {
			e.cache.Unpin(id)
		}
	}()

	hasVerdict := func(id types.Hash) bool {
		if _, ok := pinned[id]; ok {
			return true
		}
		if v, ok := e.cache.LookupPin(id); ok {
			pinned[id] = v
			return true
		}
		return false
	}

	g, err := e.builder.Resolve(ctx, txid, depth, hasVerdict)
	if err != nil {
		return nil, err
	}
	txLog := slog.WithTxID(txid.String())
	txLog.Debug().
		Int("nodes", len(g.Order)).
		Int("pinned", len(pinned)).
		Msg("ancestry resolved")
	return e.judge(g, pinned)
}

// judge walks the graph in topological order, so every ancestor already
// has its verdict when its spender is considered.
func (e *Engine) judge(g *dag.Graph, pinned map[types.Hash]*Verdict) (*Verdict, error) {
	verdicts := make(map[types.Hash]*Verdict, len(g.Order))
	parent := func(id types.Hash) *Verdict {
		if v, ok := verdicts[id]; ok {
			return v
		}
		return pinned[id]
	}

	for _, id := range g.Order {
		node := g.Nodes[id]

		switch {
		case node.Cached:
			verdicts[id] = pinned[id]
			continue
		case node.Pruned:
			continue // Contributes nothing to this token.
		case node.Truncated:
			verdicts[id] = &Verdict{
				TxID:     id,
				TokenID:  g.TokenID,
				Validity: Unknown,
				Reason:   ReasonDepthExceeded,
			}
			continue
		case node.ParseErr != nil:
			// Only the target survives resolution malformed.
			v := &Verdict{TxID: id, Validity: Invalid, Reason: ReasonMalformed}
			e.cache.Put(v)
			verdicts[id] = v
			continue
		case node.Msg == nil:
			// The target carries no token data at all. Not cached:
			// the verdict cache is for token transactions.
			verdicts[id] = &Verdict{TxID: id, Validity: Invalid, Reason: ReasonNotToken}
			continue
		}

		v, err := e.judgeNode(g, node, parent)
		if err != nil {
			return nil, err
		}
		if v.Final() {
			e.cache.Put(v)
			if e.tokens != nil && v.IsValid() && node.Msg.Op == slp.OpGenesis {
				if terr := e.tokens.Put(types.TokenID(id), token.MetadataFromGenesis(node.Msg)); terr != nil {
					e.logger.Warn().Err(terr).
						Str("token", id.String()).
						Msg("token metadata not recorded")
				}
			}
		}
		verdicts[id] = v
	}

	tv := verdicts[g.Target]
	if tv == nil {
		return nil, fmt.Errorf("no verdict for target %s", g.Target)
	}
	return tv, nil
}

func (e *Engine) judgeNode(g *dag.Graph, node *dag.Node, parent func(types.Hash) *Verdict) (*Verdict, error) {
	switch node.Msg.Op {
	case slp.OpGenesis:
		return e.judgeGenesis(g, node), nil
	case slp.OpMint:
		return e.judgeMint(g, node, parent), nil
	case slp.OpSend:
		return e.judgeSend(g, node, parent)
	default:
		return &Verdict{TxID: node.TxID, Validity: Invalid, Reason: ReasonMalformed}, nil
	}
}

// judgeGenesis accepts any well-formed genesis: it roots its own token
// and depends on no ancestor. The registry check only fires if a
// different txid already established this token id, which means the
// transaction source is lying.
func (e *Engine) judgeGenesis(g *dag.Graph, node *dag.Node) *Verdict {
	tokenID := types.TokenID(node.TxID)
	if reg, ok := e.cache.GenesisFor(tokenID); ok && reg != node.TxID {
		return &Verdict{
			TxID:     node.TxID,
			TokenID:  tokenID,
			Validity: Invalid,
			Reason:   ReasonDuplicateGenesis,
		}
	}

	v := &Verdict{
		TxID:      node.TxID,
		TokenID:   tokenID,
		Validity:  Valid,
		Outputs:   outputAmounts(node),
		BatonVout: placedBaton(node),
	}
	v.Burned = node.Msg.Quantity - sum(v.Outputs)
	return v
}

// judgeMint requires a valid same-token baton on one of its inputs.
func (e *Engine) judgeMint(g *dag.Graph, node *dag.Node, parent func(types.Hash) *Verdict) *Verdict {
	sawUnknown := false
	for _, in := range node.Tx.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		p := parent(in.PrevOut.TxID)
		if p == nil {
			continue // Pruned: no token standing.
		}
		if p.Validity == Unknown {
			sawUnknown = true
			continue
		}
		if p.IsValid() && p.TokenID == g.TokenID && p.HasBatonAt(in.PrevOut.Index) {
			v := &Verdict{
				TxID:      node.TxID,
				TokenID:   g.TokenID,
				Validity:  Valid,
				Outputs:   outputAmounts(node),
				BatonVout: placedBaton(node),
			}
			v.Burned = node.Msg.Quantity - sum(v.Outputs)
			return v
		}
	}

	if sawUnknown {
		return &Verdict{
			TxID:     node.TxID,
			TokenID:  g.TokenID,
			Validity: Unknown,
			Reason:   ReasonDepthExceeded,
		}
	}
	return &Verdict{
		TxID:     node.TxID,
		TokenID:  g.TokenID,
		Validity: Invalid,
		Reason:   ReasonUnauthorizedMint,
	}
}

// judgeSend requires valid same-token inputs covering the declared output
// total. Two short-circuits keep depth-limited queries decisive where
// possible: proven coverage yields Valid even with unknown inputs left,
// and an upper bound below the requirement yields Invalid.
func (e *Engine) judgeSend(g *dag.Graph, node *dag.Node, parent func(types.Hash) *Verdict) (*Verdict, error) {
	var need uint64
	for _, a := range node.Msg.Amounts {
		if need > math.MaxUint64-a {
			return nil, fmt.Errorf("%w: declared outputs of %s", ErrQuantityOverflow, node.TxID)
		}
		need += a
	}

	var validSum, unknownBound uint64
	sawUnknown, unbounded := false, false
	for _, in := range node.Tx.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		p := parent(in.PrevOut.TxID)
		if p == nil {
			continue
		}
		if p.Validity == Unknown {
			sawUnknown = true
			pn := g.Nodes[in.PrevOut.TxID]
			if pn == nil || pn.Msg == nil {
				// Truncated: its declared amounts were never fetched.
				unbounded = true
				continue
			}
			amt := pn.Msg.OutputAmount(in.PrevOut.Index)
			if unknownBound > math.MaxUint64-amt {
				unbounded = true
				continue
			}
			unknownBound += amt
			continue
		}
		if p.IsValid() && p.TokenID == g.TokenID {
			amt := p.OutputAmount(in.PrevOut.Index)
			if validSum > math.MaxUint64-amt {
				return nil, fmt.Errorf("%w: inputs of %s", ErrQuantityOverflow, node.TxID)
			}
			validSum += amt
		}
	}

	switch {
	case validSum >= need:
		v := &Verdict{
			TxID:     node.TxID,
			TokenID:  g.TokenID,
			Validity: Valid,
			Outputs:  outputAmounts(node),
		}
		v.Burned = validSum - sum(v.Outputs)
		return v, nil
	case !sawUnknown:
		return &Verdict{
			TxID:     node.TxID,
			TokenID:  g.TokenID,
			Validity: Invalid,
			Reason:   ReasonInsufficientInputs,
		}, nil
	case !unbounded && validSum <= math.MaxUint64-unknownBound && validSum+unknownBound < need:
		// Even if every unknown input turned out valid, the declared
		// amounts cannot cover the outputs.
		return &Verdict{
			TxID:     node.TxID,
			TokenID:  g.TokenID,
			Validity: Invalid,
			Reason:   ReasonInsufficientInputs,
		}, nil
	default:
		return &Verdict{
			TxID:     node.TxID,
			TokenID:  g.TokenID,
			Validity: Unknown,
			Reason:   ReasonDepthExceeded,
		}, nil
	}
}

// outputAmounts maps the message's declared quantities onto the
// transaction's actual outputs. Quantities declared for outputs that do
// not exist are dropped here and show up as burn.
func outputAmounts(node *dag.Node) []uint64 {
	outs := make([]uint64, len(node.Tx.Outputs))
	for vout := 1; vout < len(outs); vout++ {
		outs[vout] = node.Msg.OutputAmount(uint32(vout))
	}
	return outs
}

// placedBaton returns the baton vout if the message places one on an
// output that exists, else zero. A baton aimed past the last output is
// destroyed.
func placedBaton(node *dag.Node) uint32 {
	if node.Msg.HasBaton() && int(node.Msg.BatonVout) < len(node.Tx.Outputs) {
		return node.Msg.BatonVout
	}
	return 0
}

func sum(amounts []uint64) uint64 {
	var total uint64
	for _, a := range amounts {
		total += a
	}
	return total
}
