package slp

import "encoding/binary"

// Script builders for the three token operations. Used by tooling and
// tests; the daemon itself only parses.

// GenesisScript builds a GENESIS OP_RETURN script.
func GenesisScript(ticker, name, docURL string, docHash []byte, decimals uint8, batonVout uint32, quantity uint64) []byte {
	b := newScriptBuilder()
	b.push([]byte("GENESIS"))
	b.push([]byte(ticker))
	b.push([]byte(name))
	b.push([]byte(docURL))
	b.push(docHash)
	b.push([]byte{decimals})
	b.pushBaton(batonVout)
	b.pushQuantity(quantity)
	return b.script
}

// MintScript builds a MINT OP_RETURN script.
func MintScript(tokenID [32]byte, batonVout uint32, quantity uint64) []byte {
	b := newScriptBuilder()
	b.push([]byte("MINT"))
	b.push(tokenID[:])
	b.pushBaton(batonVout)
	b.pushQuantity(quantity)
	return b.script
}

// SendScript builds a SEND OP_RETURN script with the given per-output
// quantities (for vouts 1..len(amounts)).
func SendScript(tokenID [32]byte, amounts []uint64) []byte {
	b := newScriptBuilder()
	b.push([]byte("SEND"))
	b.push(tokenID[:])
	for _, amt := range amounts {
		b.pushQuantity(amt)
	}
	return b.script
}

type scriptBuilder struct {
	script []byte
}

// newScriptBuilder starts a script with OP_RETURN, the lokad id, and the
// token type; the caller pushes the transaction type and its fields.
func newScriptBuilder() *scriptBuilder {
	b := &scriptBuilder{script: []byte{opReturn}}
	b.push(LokadID)
	b.push([]byte{TokenType1})
	return b
}

// push appends a minimally-encoded data push. The empty push uses
// OP_PUSHDATA1 with length zero, since opcode 0x00 is not a push under
// SLP rules.
func (b *scriptBuilder) push(data []byte) {
	switch {
	case len(data) == 0:
		b.script = append(b.script, opPushData1, 0x00)
	case len(data) <= 0x4b:
		b.script = append(b.script, byte(len(data)))
		b.script = append(b.script, data...)
	case len(data) <= 0xff:
		b.script = append(b.script, opPushData1, byte(len(data)))
		b.script = append(b.script, data...)
	default:
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(data)))
		b.script = append(b.script, opPushData2, l[0], l[1])
		b.script = append(b.script, data...)
	}
}

func (b *scriptBuilder) pushBaton(vout uint32) {
	if vout == 0 {
		b.push(nil)
		return
	}
	b.push([]byte{byte(vout)})
}

func (b *scriptBuilder) pushQuantity(q uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], q)
	b.push(buf[:])
}
