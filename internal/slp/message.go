// Package slp parses and builds SLP token payloads carried in OP_RETURN
// outputs.
//
// An SLP transaction marks itself with a lokad id ("\x00SLP") in the first
// output script and encodes one token operation: GENESIS creates a token
// type and its initial supply, MINT issues additional supply under baton
// authority, and SEND assigns quantities to outputs. Parsing is a pure
// function of the script bytes; whether the operation is actually valid is
// decided by the validator against the transaction DAG.
package slp

import (
	"errors"
	"fmt"

	"github.com/simpleledger/slpd/pkg/types"
)

// LokadID is the protocol marker pushed immediately after OP_RETURN.
var LokadID = []byte{0x00, 'S', 'L', 'P'}

// TokenType1 is the only token type this validator understands.
const TokenType1 = 1

// MaxSendOutputs is the maximum number of quantities in a SEND payload.
const MaxSendOutputs = 19

// Parse errors. Structural violations of a script that carries the SLP
// marker all wrap ErrMalformedTokenData.
var (
	ErrMalformedTokenData   = errors.New("malformed token data")
	ErrUnsupportedTokenType = fmt.Errorf("%w: unsupported token type", ErrMalformedTokenData)
)

// Op identifies the token operation of a message.
type Op int

const (
	OpGenesis Op = iota + 1
	OpMint
	OpSend
)

// String returns the canonical wire name of the operation.
func (o Op) String() string {
	switch o {
	case OpGenesis:
		return "GENESIS"
	case OpMint:
		return "MINT"
	case OpSend:
		return "SEND"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Message is a decoded SLP payload.
//
// For OpGenesis the TokenID is zero: the token id of a genesis is, by
// definition, the txid of the transaction carrying it, which the parser
// does not know.
type Message struct {
	Op      Op
	TokenID types.TokenID

	// Genesis metadata.
	Ticker   string
	Name     string
	DocURL   string
	DocHash  []byte
	Decimals uint8

	// BatonVout is the output index carrying minting authority.
	// Zero means no baton (batons can never sit at vout 0 or 1).
	BatonVout uint32

	// Quantity is the initial supply (genesis) or additional supply (mint).
	Quantity uint64

	// Amounts are the per-output quantities of a SEND, for vouts 1..len.
	// Vout 0 is the OP_RETURN itself and never carries tokens.
	Amounts []uint64
}

// OutputAmount returns the token quantity the message assigns to the given
// output index, or zero.
func (m *Message) OutputAmount(vout uint32) uint64 {
	switch m.Op {
	case OpGenesis, OpMint:
		if vout == 1 {
			return m.Quantity
		}
	case OpSend:
		if vout >= 1 && int(vout) <= len(m.Amounts) {
			return m.Amounts[vout-1]
		}
	}
	return 0
}

// HasBaton reports whether the message places a minting baton.
func (m *Message) HasBaton() bool {
	return m.BatonVout >= 2
}
