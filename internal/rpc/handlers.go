package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/simpleledger/slpd/internal/dag"
	"github.com/simpleledger/slpd/internal/validator"
	"github.com/simpleledger/slpd/pkg/types"
)

// handleValidate implements slpvalidate. Params are positional:
// [txid, depthCheck, burnCheck]; the two flags are optional.
//
// A transaction that breaks protocol rules is a successful answer with
// valid=false. RPC errors are reserved for judgements that could not be
// made at all.
func (s *Server) handleValidate(ctx context.Context, req *Request) (interface{}, *Error) {
	txid, depthCheck, burnCheck, perr := parseValidateParams(req)
	if perr != nil {
		return nil, perr
	}

	v, err := s.engine.Validate(ctx, txid, depthCheck)
	if err != nil {
		switch {
		case errors.Is(err, dag.ErrCyclicReference):
			// A cycle is a protocol violation by the transaction
			// history, not an operational fault.
			return &ValidateResult{
				Valid: false,
				Details: &ValidateDetails{
					TxID:     txid.String(),
					Validity: validator.Invalid.String(),
					Reason:   string(validator.ReasonCyclicReference),
				},
			}, nil
		case errors.Is(err, validator.ErrQuantityOverflow):
			return nil, &Error{Code: CodeOverflow, Message: err.Error()}
		case errors.Is(err, dag.ErrUnresolvedAncestor):
			return nil, &Error{Code: CodeUnresolved, Message: err.Error()}
		default:
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
	}

	details := &ValidateDetails{
		TxID:     v.TxID.String(),
		Validity: v.Validity.String(),
		Reason:   string(v.Reason),
		Outputs:  v.Outputs,
		Baton:    v.BatonVout,
	}
	if v.TokenID != (types.TokenID{}) {
		details.TokenID = types.Hash(v.TokenID).String()
	}
	if v.Validity == validator.Unknown {
		details.Reason = "unknown"
	}
	if burnCheck && v.IsValid() {
		burned := v.Burned
		details.Burned = &burned
	}

	return &ValidateResult{Valid: v.IsValid(), Details: details}, nil
}

// parseValidateParams decodes the positional slpvalidate params.
func parseValidateParams(req *Request) (types.Hash, bool, bool, *Error) {
	var raw []json.RawMessage
	if perr := parseParams(req, &raw); perr != nil {
		return types.Hash{}, false, false, perr
	}
	if len(raw) < 1 || len(raw) > 3 {
		return types.Hash{}, false, false, &Error{
			Code:    CodeInvalidParams,
			Message: "params must be [txid, depthCheck, burnCheck]",
		}
	}

	var txidHex string
	if err := json.Unmarshal(raw[0], &txidHex); err != nil {
		return types.Hash{}, false, false, &Error{Code: CodeInvalidParams, Message: "txid must be a string"}
	}
	txid, err := types.HexToHash(txidHex)
	if err != nil {
		return types.Hash{}, false, false, &Error{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("invalid txid: %v", err),
		}
	}

	var depthCheck, burnCheck bool
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &depthCheck); err != nil {
			return types.Hash{}, false, false, &Error{Code: CodeInvalidParams, Message: "depthCheck must be a boolean"}
		}
	}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw[2], &burnCheck); err != nil {
			return types.Hash{}, false, false, &Error{Code: CodeInvalidParams, Message: "burnCheck must be a boolean"}
		}
	}
	return txid, depthCheck, burnCheck, nil
}

// handleGetTokenInfo implements slp_getTokenInfo.
func (s *Server) handleGetTokenInfo(req *Request) (interface{}, *Error) {
	if s.tokens == nil {
		return nil, &Error{Code: CodeNotFound, Message: "token metadata store not enabled"}
	}

	var params TokenParam
	if perr := parseParams(req, &params); perr != nil {
		return nil, perr
	}
	id, err := types.HexToTokenID(params.TokenID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid token_id: %v", err)}
	}

	has, err := s.tokens.Has(id)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if !has {
		return nil, &Error{
			Code:    CodeNotFound,
			Message: "token not known; validate its genesis transaction first",
		}
	}

	meta, err := s.tokens.Get(id)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	return &TokenInfoResult{
		TokenID:         types.Hash(id).String(),
		Ticker:          meta.Ticker,
		Name:            meta.Name,
		DocumentURL:     meta.DocumentURL,
		DocumentHash:    meta.DocumentHash,
		Decimals:        meta.Decimals,
		InitialQuantity: meta.InitialQuantity,
		MintBatonVout:   meta.MintBatonVout,
	}, nil
}

// handleCacheGetInfo implements cache_getInfo.
func (s *Server) handleCacheGetInfo(_ *Request) (interface{}, *Error) {
	return s.engine.Cache().Stats(), nil
}

// handleCacheFlush implements cache_flush.
func (s *Server) handleCacheFlush(_ *Request) (interface{}, *Error) {
	n, err := s.engine.Cache().Flush()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("flush: %v", err)}
	}
	s.logger.Info().Int("records", n).Msg("cache flushed on request")
	return &FlushResult{Flushed: n}, nil
}

// handleServerGetInfo implements server_getInfo.
func (s *Server) handleServerGetInfo(_ *Request) (interface{}, *Error) {
	stats := s.engine.Cache().Stats()
	return &ServerInfoResult{
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		CacheEntries:  stats.Entries,
		Tokens:        stats.Tokens,
	}, nil
}
