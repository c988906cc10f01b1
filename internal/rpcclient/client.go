// Package rpcclient provides a JSON-RPC 2.0 client for slpd.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/simpleledger/slpd/internal/rpc"
	"github.com/simpleledger/slpd/internal/validator"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
// Unrestricted validations of deep histories can take a while, so callers
// driving those should pass a generous timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// Validate asks the daemon to judge a transaction.
func (c *Client) Validate(txid string, depthCheck, burnCheck bool) (*rpc.ValidateResult, error) {
	var result rpc.ValidateResult
	params := []interface{}{txid, depthCheck, burnCheck}
	if err := c.Call("slpvalidate", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TokenInfo fetches genesis metadata for a validated token.
func (c *Client) TokenInfo(tokenID string) (*rpc.TokenInfoResult, error) {
	var result rpc.TokenInfoResult
	if err := c.Call("slp_getTokenInfo", rpc.TokenParam{TokenID: tokenID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheInfo fetches verdict cache counters.
func (c *Client) CacheInfo() (*validator.CacheStats, error) {
	var result validator.CacheStats
	if err := c.Call("cache_getInfo", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CacheFlush forces a durable cache flush.
func (c *Client) CacheFlush() (*rpc.FlushResult, error) {
	var result rpc.FlushResult
	if err := c.Call("cache_flush", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ServerInfo fetches daemon status.
func (c *Client) ServerInfo() (*rpc.ServerInfoResult, error) {
	var result rpc.ServerInfoResult
	if err := c.Call("server_getInfo", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
