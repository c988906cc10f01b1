package dag

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/simpleledger/slpd/internal/fetch"
	slog "github.com/simpleledger/slpd/internal/log"
	"github.com/simpleledger/slpd/internal/slp"
	"github.com/simpleledger/slpd/pkg/types"
)

// Resolution errors.
var (
	// ErrUnresolvedAncestor means a required ancestor could not be
	// fetched. This is an operational fault, never a validity statement.
	ErrUnresolvedAncestor = errors.New("unresolved ancestor")

	// ErrCyclicReference means an input chain led back to a transaction
	// already on the resolution path. Impossible on a real chain, so it
	// indicates forged input data.
	ErrCyclicReference = errors.New("cyclic transaction reference")
)

// Builder resolves ancestor graphs through a transaction source.
type Builder struct {
	source fetch.Source
	logger zerolog.Logger
}

// NewBuilder creates a builder over the given transaction source.
func NewBuilder(source fetch.Source) *Builder {
	return &Builder{
		source: source,
		logger: slog.DAG,
	}
}

// frame is one entry on the explicit resolution stack.
type frame struct {
	txid     types.Hash
	depth    int
	expanded bool
}

// Resolve builds the ancestor graph for txid. maxDepth bounds how many
// spend hops from the target are expanded; zero means unlimited. Nodes at
// the boundary are marked Truncated and left unresolved.
//
// Recursion is replaced by an explicit work stack so graph depth never
// translates into call-stack depth, and the on-path set doubles as the
// cycle guard.
// hasVerdict reports whether a final verdict for a txid is already known,
// which stops expansion at that node.
func (b *Builder) Resolve(ctx context.Context, txid types.Hash, maxDepth int, hasVerdict func(types.Hash) bool) (*Graph, error) {
	if hasVerdict == nil {
		hasVerdict = func(types.Hash) bool { return false }
	}
	g := &Graph{
		Target: txid,
		Nodes:  make(map[types.Hash]*Node),
	}

	stack := []frame{{txid: txid, depth: 0}}
	onPath := make(map[types.Hash]bool)

	for len(stack) > 0 {
		f := &stack[len(stack)-1]

		if f.expanded {
			// All ancestors resolved; finalize in topological order.
			delete(onPath, f.txid)
			g.Order = append(g.Order, f.txid)
			stack = stack[:len(stack)-1]
			continue
		}

		if onPath[f.txid] {
			return nil, fmt.Errorf("%w: %s", ErrCyclicReference, f.txid)
		}
		if _, seen := g.Nodes[f.txid]; seen {
			// Shared ancestor reached through another branch.
			stack = stack[:len(stack)-1]
			continue
		}

		node, err := b.inspect(ctx, g, f.txid, f.depth, maxDepth, hasVerdict)
		if err != nil {
			return nil, err
		}
		g.Nodes[f.txid] = node

		if !b.expands(g, node) {
			g.Order = append(g.Order, f.txid)
			stack = stack[:len(stack)-1]
			continue
		}

		f.expanded = true
		onPath[f.txid] = true
		for _, in := range node.Tx.Inputs {
			if in.PrevOut.IsZero() {
				continue // Coinbase.
			}
			if in.PrevOut.TxID == f.txid {
				return nil, fmt.Errorf("%w: %s references itself", ErrCyclicReference, f.txid)
			}
			stack = append(stack, frame{txid: in.PrevOut.TxID, depth: f.depth + 1})
		}
	}

	b.logger.Debug().
		Str("target", txid.String()).
		Int("nodes", len(g.Nodes)).
		Msg("graph resolved")

	return g, nil
}

// inspect fetches and classifies a single transaction.
func (b *Builder) inspect(ctx context.Context, g *Graph, txid types.Hash, depth, maxDepth int, hasVerdict func(types.Hash) bool) (*Node, error) {
	node := &Node{TxID: txid, Depth: depth}
	isTarget := txid == g.Target

	if !isTarget && hasVerdict(txid) {
		node.Cached = true
		return node, nil
	}

	if maxDepth > 0 && depth > maxDepth {
		node.Truncated = true
		return node, nil
	}

	t, err := b.source.Fetch(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrUnresolvedAncestor, txid, err)
	}
	node.Tx = t

	msg, perr := slp.Parse(t)
	if perr != nil {
		node.ParseErr = perr
		if !isTarget {
			node.Pruned = true // Malformed ancestor carries no token value.
		}
		return node, nil
	}
	node.Msg = msg

	if msg == nil {
		if !isTarget {
			node.Pruned = true
		}
		return node, nil
	}

	if isTarget {
		g.TokenID = tokenIDOf(txid, msg)
		return node, nil
	}

	// Ancestors of a different token contribute nothing to this
	// validation; their own validity is somebody else's query.
	if tokenIDOf(txid, msg) != g.TokenID {
		node.Pruned = true
	}
	return node, nil
}

// expands reports whether a node's inputs need resolving.
func (b *Builder) expands(g *Graph, node *Node) bool {
	if node.Cached || node.Pruned || node.Truncated || node.Msg == nil || node.ParseErr != nil {
		return false
	}
	// Genesis roots the graph; its validity depends on no ancestor.
	return node.Msg.Op != slp.OpGenesis
}

// tokenIDOf returns the token id a message operates on. For a genesis the
// id is the carrying transaction's own txid.
func tokenIDOf(txid types.Hash, msg *slp.Message) types.TokenID {
	if msg.Op == slp.OpGenesis {
		return types.TokenID(txid)
	}
	return msg.TokenID
}
