// Package dag resolves the ancestor graph a token transaction's validity
// depends on.
//
// Starting from the transaction of interest, the builder walks input
// references backwards through the transaction source, pruning branches
// that cannot contribute token value and stopping at transactions whose
// verdict is already cached. The result is a subset of the transaction
// DAG, topologically ordered so the validation engine can evaluate it
// bottom-up from the genesis end.
package dag

import (
	"github.com/simpleledger/slpd/internal/slp"
	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

// Node is one transaction's position in the resolved graph.
type Node struct {
	TxID  types.Hash
	Depth int

	// Tx and Msg are populated for fetched nodes. Msg is nil when the
	// transaction carries no token data; ParseErr is set when it carries
	// the SLP marker but the payload is malformed.
	Tx       *tx.Transaction
	Msg      *slp.Message
	ParseErr error

	// Cached marks a boundary node whose verdict was already in the
	// cache; the node was not fetched or expanded.
	Cached bool

	// Pruned marks a node that cannot contribute token value to the
	// token under validation (no token data, foreign token id, or a
	// genesis of a different token).
	Pruned bool

	// Truncated marks a node beyond the resolution depth limit.
	Truncated bool
}

// Graph is the resolved ancestor set for one validation run.
type Graph struct {
	// Target is the transaction the query asked about.
	Target types.Hash

	// TokenID is the token under validation, derived from the target.
	TokenID types.TokenID

	Nodes map[types.Hash]*Node

	// Order lists txids topologically: every node appears after all of
	// its resolved ancestors.
	Order []types.Hash
}

// TargetNode returns the graph's target node.
func (g *Graph) TargetNode() *Node {
	return g.Nodes[g.Target]
}
