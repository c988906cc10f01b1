// Package tx defines the transaction view consumed by the validator.
//
// The validator never constructs or signs transactions; it only needs the
// spend graph (input outpoints) and the output scripts that may carry a
// token payload. A Transaction is therefore a projection of the full wire
// transaction, as returned by the transaction source.
package tx

import "github.com/simpleledger/slpd/pkg/types"

// Input is a reference to the output being spent.
type Input struct {
	PrevOut types.Outpoint `json:"prev_out"`
}

// Output is a single transaction output. Value is in base coin units and
// is unrelated to token quantities, which live inside Script.
type Output struct {
	Value  uint64 `json:"value"`
	Script []byte `json:"script"`
}

// Transaction is the validator's view of a confirmed transaction.
type Transaction struct {
	TxID    types.Hash `json:"txid"`
	Inputs  []Input    `json:"inputs"`
	Outputs []Output   `json:"outputs"`
}

// IsCoinbase reports whether the transaction has a single null-outpoint input.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
}
