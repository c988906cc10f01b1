// Package validator judges SLP transactions by walking their token
// ancestry back to genesis.
//
// A verdict is final once it is Valid or Invalid; finality never changes
// because the ancestor set of a confirmed transaction never changes. Final
// verdicts are cached and reused across queries. Unknown verdicts only
// arise from depth-limited queries and are never cached.
package validator

import (
	"errors"
	"fmt"

	"github.com/simpleledger/slpd/pkg/types"
)

// Validator errors. These surface as RPC errors; protocol-invalid
// transactions are not errors, they get an Invalid verdict instead.
var (
	ErrQuantityOverflow = errors.New("token quantity overflow")
)

// Validity is the outcome of judging a transaction.
type Validity int

const (
	// Unknown means the judgement could not be completed, typically
	// because a depth-limited query truncated the ancestry.
	Unknown Validity = iota
	Valid
	Invalid
)

// String returns the lowercase name used on the wire and in storage.
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes validity as its string name.
func (v Validity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON decodes a validity string.
func (v *Validity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"valid"`:
		*v = Valid
	case `"invalid"`:
		*v = Invalid
	case `"unknown"`:
		*v = Unknown
	default:
		return fmt.Errorf("invalid validity %s", data)
	}
	return nil
}

// Reason explains why a transaction is not valid.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotToken           Reason = "no token data"
	ReasonMalformed          Reason = "malformed token data"
	ReasonDuplicateGenesis   Reason = "duplicate genesis"
	ReasonUnauthorizedMint   Reason = "mint without baton"
	ReasonInsufficientInputs Reason = "insufficient valid token inputs"
	ReasonCyclicReference    Reason = "circular token reference"
	ReasonDepthExceeded      Reason = "validity unknown at depth limit"
)

// Verdict is the result of judging one transaction.
type Verdict struct {
	TxID     types.Hash    `json:"txid"`
	TokenID  types.TokenID `json:"token_id,omitempty"`
	Validity Validity      `json:"validity"`
	Reason   Reason        `json:"reason,omitempty"`

	// Outputs holds the judged token quantity per vout; index 0 is the
	// OP_RETURN output and always zero. Only set on valid verdicts.
	Outputs []uint64 `json:"outputs,omitempty"`

	// BatonVout is the output index carrying the mint baton, or zero if
	// the transaction carries none. A baton is never at vout 0 or 1.
	BatonVout uint32 `json:"baton_vout,omitempty"`

	// Burned is the quantity of valid token input exceeding the declared
	// outputs. Burning is not a fault; the excess simply ceases to exist.
	Burned uint64 `json:"burned,omitempty"`
}

// Final reports whether the verdict will never change.
func (v *Verdict) Final() bool {
	return v.Validity != Unknown
}

// IsValid reports whether the transaction passed judgement.
func (v *Verdict) IsValid() bool {
	return v.Validity == Valid
}

// OutputAmount returns the judged token quantity assigned to a vout.
// Invalid and unknown verdicts assign nothing.
func (v *Verdict) OutputAmount(vout uint32) uint64 {
	if v.Validity != Valid || int(vout) >= len(v.Outputs) {
		return 0
	}
	return v.Outputs[vout]
}

// HasBatonAt reports whether the verdict places a usable mint baton at
// the given vout.
func (v *Verdict) HasBatonAt(vout uint32) bool {
	return v.Validity == Valid && v.BatonVout >= 2 && v.BatonVout == vout
}
