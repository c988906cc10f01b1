// Package token persists metadata recorded at token genesis.
//
// Tokens are identified by a TokenID equal to the txid of their genesis
// transaction. Metadata is written once, when the genesis transaction is
// first judged valid, and served read-only afterwards.
package token

import (
	"encoding/hex"

	"github.com/simpleledger/slpd/internal/slp"
	"github.com/simpleledger/slpd/pkg/types"
)

// Metadata holds the descriptive fields declared in a genesis transaction.
type Metadata struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	DocumentURL     string `json:"document_url,omitempty"`
	DocumentHash    string `json:"document_hash,omitempty"`
	Decimals        uint8  `json:"decimals"`
	InitialQuantity uint64 `json:"initial_quantity"`
	MintBatonVout   uint32 `json:"mint_baton_vout,omitempty"`
}

// MetadataFromGenesis extracts metadata from a parsed genesis message.
func MetadataFromGenesis(msg *slp.Message) *Metadata {
	meta := &Metadata{
		Ticker:          msg.Ticker,
		Name:            msg.Name,
		DocumentURL:     msg.DocURL,
		Decimals:        msg.Decimals,
		InitialQuantity: msg.Quantity,
	}
	if len(msg.DocHash) > 0 {
		meta.DocumentHash = hex.EncodeToString(msg.DocHash)
	}
	if msg.HasBaton() {
		meta.MintBatonVout = msg.BatonVout
	}
	return meta
}

// MetadataEntry pairs a token ID with its metadata.
type MetadataEntry struct {
	ID types.TokenID
	Metadata
}
