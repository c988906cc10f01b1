package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHexToHash(t *testing.T) {
	hexStr := strings.Repeat("ab", HashSize)
	h, err := HexToHash(hexStr)
	if err != nil {
		t.Fatalf("HexToHash() error: %v", err)
	}
	if h.String() != hexStr {
		t.Errorf("String() = %q, want %q", h.String(), hexStr)
	}
	if h.IsZero() {
		t.Error("IsZero() = true for non-zero hash")
	}
}

func TestHexToHashErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"long", strings.Repeat("ab", HashSize+1)},
		{"not hex", strings.Repeat("zz", HashSize)},
		{"odd length", strings.Repeat("a", HashSize*2-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := HexToHash(tt.input); err == nil {
				t.Errorf("HexToHash(%q) expected error", tt.input)
			}
		})
	}
}

func TestHashJSONRoundTrip(t *testing.T) {
	h, _ := HexToHash(strings.Repeat("12", HashSize))

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded Hash
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded != h {
		t.Errorf("round trip mismatch: got %s, want %s", decoded, h)
	}
}

func TestTokenIDJSON(t *testing.T) {
	id, err := HexToTokenID(strings.Repeat("cd", HashSize))
	if err != nil {
		t.Fatalf("HexToTokenID() error: %v", err)
	}

	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded TokenID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded != id {
		t.Errorf("round trip mismatch: got %s, want %s", decoded, id)
	}
}

func TestBytesToHash(t *testing.T) {
	b := make([]byte, HashSize)
	b[0] = 0xff
	h, err := BytesToHash(b)
	if err != nil {
		t.Fatalf("BytesToHash() error: %v", err)
	}
	if h[0] != 0xff {
		t.Errorf("BytesToHash() lost data")
	}

	if _, err := BytesToHash(b[:HashSize-1]); err == nil {
		t.Error("BytesToHash() short slice should error")
	}
}

func TestOutpointString(t *testing.T) {
	h, _ := HexToHash(strings.Repeat("00", HashSize-1) + "01")
	op := Outpoint{TxID: h, Index: 3}
	want := h.String() + ":3"
	if op.String() != want {
		t.Errorf("String() = %q, want %q", op.String(), want)
	}
	if op.IsZero() {
		t.Error("IsZero() = true for non-zero outpoint")
	}
	if !(Outpoint{}).IsZero() {
		t.Error("IsZero() = false for zero outpoint")
	}
}
