package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

func testHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource()
	txn := &tx.Transaction{TxID: testHash(1)}
	src.Add(txn)

	got, err := src.Fetch(context.Background(), testHash(1))
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.TxID != txn.TxID {
		t.Errorf("Fetch() txid = %s", got.TxID)
	}

	if _, err := src.Fetch(context.Background(), testHash(2)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() missing error = %v, want ErrNotFound", err)
	}

	if n := src.FetchCount(testHash(1)); n != 1 {
		t.Errorf("FetchCount() = %d, want 1", n)
	}
}

func TestCachingSource(t *testing.T) {
	src := NewMemorySource()
	src.Add(&tx.Transaction{TxID: testHash(1)})

	cached, err := NewCachingSource(src, 4)
	if err != nil {
		t.Fatalf("NewCachingSource() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := cached.Fetch(context.Background(), testHash(1)); err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
	}
	if n := src.FetchCount(testHash(1)); n != 1 {
		t.Errorf("inner fetched %d times, want 1", n)
	}

	// Errors must not be cached.
	boom := errors.New("boom")
	src.Fail(testHash(2), boom)
	if _, err := cached.Fetch(context.Background(), testHash(2)); !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want boom", err)
	}
	src.Add(&tx.Transaction{TxID: testHash(2)})
	src.mu.Lock()
	src.errs = map[types.Hash]error{}
	src.mu.Unlock()
	if _, err := cached.Fetch(context.Background(), testHash(2)); err != nil {
		t.Errorf("Fetch() after recovery error: %v", err)
	}
}

// nodeResponse builds a verbose getrawtransaction result for the handler.
func nodeResponse(txid types.Hash, prev types.Hash) map[string]interface{} {
	return map[string]interface{}{
		"txid": txid.String(),
		"vin": []map[string]interface{}{
			{"txid": prev.String(), "vout": 1},
		},
		"vout": []map[string]interface{}{
			{"value": 0.0, "scriptPubKey": map[string]string{"hex": "6a"}},
			{"value": 0.00000546, "scriptPubKey": map[string]string{"hex": "76a9"}},
		},
	}
}

func TestNodeSourceFetch(t *testing.T) {
	txid := testHash(7)
	prev := testHash(6)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getrawtransaction" {
			t.Errorf("method = %q", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": nodeResponse(txid, prev),
			"id":     1,
		})
	}))
	defer srv.Close()

	src := NewNodeSource(srv.URL, time.Second, 0)
	got, err := src.Fetch(context.Background(), txid)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.TxID != txid {
		t.Errorf("TxID = %s, want %s", got.TxID, txid)
	}
	if len(got.Inputs) != 1 || got.Inputs[0].PrevOut.TxID != prev || got.Inputs[0].PrevOut.Index != 1 {
		t.Errorf("Inputs = %+v", got.Inputs)
	}
	if len(got.Outputs) != 2 || got.Outputs[0].Script[0] != 0x6a {
		t.Errorf("Outputs = %+v", got.Outputs)
	}
	if got.Outputs[0].Value != 0 || got.Outputs[1].Value != 546 {
		t.Errorf("Values = %d, %d", got.Outputs[0].Value, got.Outputs[1].Value)
	}
}

func TestNodeSourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": -5, "message": "No such mempool or blockchain transaction"},
			"id":    1,
		})
	}))
	defer srv.Close()

	src := NewNodeSource(srv.URL, time.Second, 3)
	_, err := src.Fetch(context.Background(), testHash(1))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestNodeSourceRetries(t *testing.T) {
	var calls atomic.Int64
	txid := testHash(9)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": nodeResponse(txid, testHash(8)),
			"id":     1,
		})
	}))
	defer srv.Close()

	src := NewNodeSource(srv.URL, time.Second, 5)
	if _, err := src.Fetch(context.Background(), txid); err != nil {
		t.Fatalf("Fetch() error after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNodeSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewNodeSource(srv.URL, time.Second, 1)
	_, err := src.Fetch(context.Background(), testHash(1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}
