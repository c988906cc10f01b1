package fetch

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	slog "github.com/simpleledger/slpd/internal/log"
	"github.com/simpleledger/slpd/internal/metrics"
	"github.com/simpleledger/slpd/pkg/tx"
	"github.com/simpleledger/slpd/pkg/types"
)

// NodeSource fetches transactions from a bitcoind-compatible node via the
// getrawtransaction JSON-RPC call (verbose form). Transient failures are
// retried with exponential backoff up to a bounded attempt count; after
// that the fetch surfaces ErrUnavailable so the caller can distinguish an
// operational fault from an invalid transaction.
type NodeSource struct {
	url        string
	username   string
	password   string
	http       *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// SetBasicAuth sets credentials sent with every upstream request.
func (n *NodeSource) SetBasicAuth(username, password string) {
	n.username = username
	n.password = password
}

// NewNodeSource creates a source talking to the node at url. Each attempt
// is bounded by timeout; transient failures are retried up to maxRetries
// additional attempts.
func NewNodeSource(url string, timeout time.Duration, maxRetries int) *NodeSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &NodeSource{
		url:        url,
		http:       &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     slog.Fetch,
	}
}

// Fetch implements Source.
func (n *NodeSource) Fetch(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	var result *tx.Transaction

	op := func() error {
		t, err := n.fetchOnce(ctx, txid)
		if err != nil {
			if err == ErrNotFound || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			metrics.RecordFetchRetry()
			n.logger.Debug().Str("txid", txid.String()).Err(err).Msg("fetch attempt failed")
			return err
		}
		result = t
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if err == ErrNotFound {
			metrics.RecordFetch("not_found")
			return nil, ErrNotFound
		}
		metrics.RecordFetch("error")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	metrics.RecordFetch("ok")
	return result, nil
}

// rpcRequest is a JSON-RPC request to the backing node.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// rawTxResult is the subset of the verbose getrawtransaction result the
// validator needs.
type rawTxResult struct {
	TxID string `json:"txid"`
	Vin  []struct {
		TxID     string `json:"txid"`
		Vout     uint32 `json:"vout"`
		Coinbase string `json:"coinbase"`
	} `json:"vin"`
	Vout []struct {
		Value        float64 `json:"value"`
		ScriptPubKey struct {
			Hex string `json:"hex"`
		} `json:"scriptPubKey"`
	} `json:"vout"`
}

func (n *NodeSource) fetchOnce(ctx context.Context, txid types.Hash) (*tx.Transaction, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "getrawtransaction",
		Params:  []interface{}{txid.String(), true},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.username != "" {
		req.SetBasicAuth(n.username, n.password)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode node response: %w", err)
	}
	if rpcResp.Error != nil {
		// bitcoind reports a missing transaction with code -5.
		if rpcResp.Error.Code == -5 || strings.Contains(rpcResp.Error.Message, "No such") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("node error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	var raw rawTxResult
	if err := json.Unmarshal(rpcResp.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	return convertRawTx(txid, &raw)
}

// convertRawTx projects the node's verbose result into the validator's
// transaction view.
func convertRawTx(txid types.Hash, raw *rawTxResult) (*tx.Transaction, error) {
	got, err := types.HexToHash(raw.TxID)
	if err != nil || got != txid {
		return nil, fmt.Errorf("node returned txid %q, want %s", raw.TxID, txid)
	}

	t := &tx.Transaction{TxID: txid}

	for _, in := range raw.Vin {
		if in.Coinbase != "" {
			t.Inputs = append(t.Inputs, tx.Input{})
			continue
		}
		prev, err := types.HexToHash(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("input txid: %w", err)
		}
		t.Inputs = append(t.Inputs, tx.Input{PrevOut: types.Outpoint{TxID: prev, Index: in.Vout}})
	}

	for _, out := range raw.Vout {
		script, err := hex.DecodeString(out.ScriptPubKey.Hex)
		if err != nil {
			return nil, fmt.Errorf("output script: %w", err)
		}
		// Node reports value in whole coins; the validator only cares
		// whether it is zero, but keep base units for fidelity.
		t.Outputs = append(t.Outputs, tx.Output{
			Value:  uint64(out.Value*1e8 + 0.5),
			Script: script,
		})
	}

	return t, nil
}
