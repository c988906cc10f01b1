package slp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

// Script opcodes relevant to SLP payloads. Every field must be a plain
// data push; OP_0 and the OP_1..OP_16 shortcuts are not pushes under SLP
// consensus rules.
const (
	opReturn    = 0x6a
	opPushData1 = 0x4c
	opPushData2 = 0x4d
	opPushData4 = 0x4e
)

// Parse extracts the SLP message from a transaction, looking at the first
// output script. It returns (nil, nil) when the transaction carries no SLP
// marker, and an error wrapping ErrMalformedTokenData when the marker is
// present but the payload violates structural rules.
func Parse(t *tx.Transaction) (*Message, error) {
	if len(t.Outputs) == 0 {
		return nil, nil
	}
	msg, err := ParseScript(t.Outputs[0].Script)
	if msg == nil || err != nil {
		return msg, err
	}

	// The OP_RETURN output must carry no coin value, and no other output
	// may be an OP_RETURN.
	if t.Outputs[0].Value != 0 {
		return nil, fmt.Errorf("%w: token output carries coin value", ErrMalformedTokenData)
	}
	for i := 1; i < len(t.Outputs); i++ {
		s := t.Outputs[i].Script
		if len(s) > 0 && s[0] == opReturn {
			return nil, fmt.Errorf("%w: multiple OP_RETURN outputs", ErrMalformedTokenData)
		}
	}
	return msg, nil
}

// ParseScript decodes a single output script. Returns (nil, nil) when the
// script is not an SLP OP_RETURN at all.
func ParseScript(script []byte) (*Message, error) {
	if len(script) == 0 || script[0] != opReturn {
		return nil, nil
	}

	fields, err := parsePushes(script[1:])
	if err != nil {
		// Unparseable pushes on a non-SLP OP_RETURN are not our business;
		// only flag malformed data when the lokad marker is present.
		if hasLokadPrefix(script) {
			return nil, err
		}
		return nil, nil
	}

	if len(fields) == 0 || !bytes.Equal(fields[0], LokadID) {
		return nil, nil
	}

	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: missing token type or transaction type", ErrMalformedTokenData)
	}

	tokenType, err := parseTokenType(fields[1])
	if err != nil {
		return nil, err
	}
	if tokenType != TokenType1 {
		return nil, ErrUnsupportedTokenType
	}

	switch string(fields[2]) {
	case "GENESIS", "INIT":
		return parseGenesis(fields[3:])
	case "MINT":
		return parseMint(fields[3:])
	case "SEND", "TRAN":
		return parseSend(fields[3:])
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrMalformedTokenData, fields[2])
	}
}

// hasLokadPrefix checks the four accepted push encodings of the lokad id.
func hasLokadPrefix(script []byte) bool {
	for _, prefix := range [][]byte{
		{opReturn, 0x04},
		{opReturn, opPushData1, 0x04},
		{opReturn, opPushData2, 0x04, 0x00},
		{opReturn, opPushData4, 0x04, 0x00, 0x00, 0x00},
	} {
		if bytes.HasPrefix(script, prefix) && bytes.HasPrefix(script[len(prefix):], LokadID) {
			return true
		}
	}
	return false
}

// parsePushes splits a script (after OP_RETURN) into its data pushes.
func parsePushes(data []byte) ([][]byte, error) {
	var fields [][]byte
	for len(data) > 0 {
		op := data[0]
		data = data[1:]

		var n int
		switch {
		case op >= 0x01 && op <= 0x4b:
			n = int(op)
		case op == opPushData1:
			if len(data) < 1 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA1", ErrMalformedTokenData)
			}
			n = int(data[0])
			data = data[1:]
		case op == opPushData2:
			if len(data) < 2 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA2", ErrMalformedTokenData)
			}
			n = int(binary.LittleEndian.Uint16(data))
			data = data[2:]
		case op == opPushData4:
			if len(data) < 4 {
				return nil, fmt.Errorf("%w: truncated OP_PUSHDATA4", ErrMalformedTokenData)
			}
			n = int(binary.LittleEndian.Uint32(data))
			data = data[4:]
		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x is not a data push", ErrMalformedTokenData, op)
		}

		if n > len(data) {
			return nil, fmt.Errorf("%w: push length %d exceeds script", ErrMalformedTokenData, n)
		}
		fields = append(fields, data[:n])
		data = data[n:]
	}
	return fields, nil
}

// parseTokenType decodes the 1- or 2-byte big-endian token type field.
func parseTokenType(b []byte) (int, error) {
	switch len(b) {
	case 1:
		return int(b[0]), nil
	case 2:
		return int(binary.BigEndian.Uint16(b)), nil
	default:
		return 0, fmt.Errorf("%w: token type must be 1 or 2 bytes, got %d", ErrMalformedTokenData, len(b))
	}
}

// parseGenesis decodes GENESIS fields:
// ticker, name, doc url, doc hash, decimals, baton vout, initial quantity.
func parseGenesis(fields [][]byte) (*Message, error) {
	if len(fields) != 7 {
		return nil, fmt.Errorf("%w: genesis wants 7 fields, got %d", ErrMalformedTokenData, len(fields))
	}

	docHash := fields[3]
	if len(docHash) != 0 && len(docHash) != 32 {
		return nil, fmt.Errorf("%w: document hash must be 0 or 32 bytes, got %d", ErrMalformedTokenData, len(docHash))
	}

	if len(fields[4]) != 1 {
		return nil, fmt.Errorf("%w: decimals must be 1 byte", ErrMalformedTokenData)
	}
	decimals := fields[4][0]
	if decimals > 9 {
		return nil, fmt.Errorf("%w: decimals must be 0-9, got %d", ErrMalformedTokenData, decimals)
	}

	baton, err := parseBatonVout(fields[5])
	if err != nil {
		return nil, err
	}

	qty, err := parseQuantity(fields[6])
	if err != nil {
		return nil, err
	}

	return &Message{
		Op:        OpGenesis,
		Ticker:    string(fields[0]),
		Name:      string(fields[1]),
		DocURL:    string(fields[2]),
		DocHash:   append([]byte(nil), docHash...),
		Decimals:  decimals,
		BatonVout: baton,
		Quantity:  qty,
	}, nil
}

// parseMint decodes MINT fields: token id, baton vout, additional quantity.
func parseMint(fields [][]byte) (*Message, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: mint wants 3 fields, got %d", ErrMalformedTokenData, len(fields))
	}

	id, err := parseTokenID(fields[0])
	if err != nil {
		return nil, err
	}
	baton, err := parseBatonVout(fields[1])
	if err != nil {
		return nil, err
	}
	qty, err := parseQuantity(fields[2])
	if err != nil {
		return nil, err
	}

	return &Message{
		Op:        OpMint,
		TokenID:   id,
		BatonVout: baton,
		Quantity:  qty,
	}, nil
}

// parseSend decodes SEND fields: token id followed by 1..19 quantities.
func parseSend(fields [][]byte) (*Message, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: send wants a token id and at least one quantity", ErrMalformedTokenData)
	}

	id, err := parseTokenID(fields[0])
	if err != nil {
		return nil, err
	}

	quantities := fields[1:]
	if len(quantities) > MaxSendOutputs {
		return nil, fmt.Errorf("%w: send has %d quantities, max is %d", ErrMalformedTokenData, len(quantities), MaxSendOutputs)
	}

	amounts := make([]uint64, len(quantities))
	for i, q := range quantities {
		amounts[i], err = parseQuantity(q)
		if err != nil {
			return nil, err
		}
	}

	return &Message{
		Op:      OpSend,
		TokenID: id,
		Amounts: amounts,
	}, nil
}

func parseTokenID(b []byte) (types.TokenID, error) {
	if len(b) != types.HashSize {
		return types.TokenID{}, fmt.Errorf("%w: token id must be %d bytes, got %d", ErrMalformedTokenData, types.HashSize, len(b))
	}
	var id types.TokenID
	copy(id[:], b)
	return id, nil
}

// parseBatonVout decodes the baton field: empty means no baton, one byte
// >= 2 places the baton at that output index.
func parseBatonVout(b []byte) (uint32, error) {
	switch len(b) {
	case 0:
		return 0, nil
	case 1:
		if b[0] < 2 {
			return 0, fmt.Errorf("%w: baton vout must be >= 2, got %d", ErrMalformedTokenData, b[0])
		}
		return uint32(b[0]), nil
	default:
		return 0, fmt.Errorf("%w: baton vout must be 0 or 1 bytes, got %d", ErrMalformedTokenData, len(b))
	}
}

// parseQuantity decodes an 8-byte big-endian token quantity.
func parseQuantity(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: quantity must be 8 bytes, got %d", ErrMalformedTokenData, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
