package rpc

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeUnresolved     = -32001 // Ancestry could not be fetched.
	CodeOverflow       = -32002 // Token quantity arithmetic overflowed.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// TokenParam is used by endpoints that take a token id.
type TokenParam struct {
	TokenID string `json:"token_id"`
}

// ── Result types ────────────────────────────────────────────────────────

// ValidateResult is returned by slpvalidate.
type ValidateResult struct {
	Valid   bool             `json:"valid"`
	Details *ValidateDetails `json:"details"`
}

// ValidateDetails carries the verdict behind a validation answer.
type ValidateDetails struct {
	TxID     string   `json:"txid"`
	TokenID  string   `json:"token_id,omitempty"`
	Validity string   `json:"validity"`
	Reason   string   `json:"reason,omitempty"`
	Outputs  []uint64 `json:"outputs,omitempty"`
	Baton    uint32   `json:"baton_vout,omitempty"`
	Burned   *uint64  `json:"burned,omitempty"` // Present only with the burn flag.
}

// TokenInfoResult is returned by slp_getTokenInfo.
type TokenInfoResult struct {
	TokenID         string `json:"token_id"`
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	DocumentURL     string `json:"document_url,omitempty"`
	DocumentHash    string `json:"document_hash,omitempty"`
	Decimals        uint8  `json:"decimals"`
	InitialQuantity uint64 `json:"initial_quantity"`
	MintBatonVout   uint32 `json:"mint_baton_vout,omitempty"`
}

// FlushResult is returned by cache_flush.
type FlushResult struct {
	Flushed int `json:"flushed"`
}

// ServerInfoResult is returned by server_getInfo.
type ServerInfoResult struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	CacheEntries  int    `json:"cache_entries"`
	Tokens        int    `json:"tokens"`
}
