package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/instruction"
	"crowdsale-ledger/internal/processor"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// JSON-RPC 2.0 error codes. Transition rejections use the sale program's
// own codes (6000 and up).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Version is the only accepted jsonrpc value.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request. Params are passed by name.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// ErrorData names the error kind so clients need not parse messages.
type ErrorData struct {
	Name string `json:"name"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Name != "" {
		return fmt.Sprintf("RPC error %d (%s): %s", e.Code, e.Data.Name, e.Message)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap maps sale program codes back onto their sentinel errors so callers
// can use errors.Is on a remote rejection.
func (e *Error) Unwrap() error {
	if e.Code < 0 {
		return nil
	}
	return crowdsale.FromCode(uint32(e.Code))
}

func newError(code int, name, msg string) *Error {
	return &Error{Code: code, Message: msg, Data: &ErrorData{Name: name}}
}

func invalidParams(format string, args ...any) *Error {
	return newError(CodeInvalidParams, "InvalidParams", fmt.Sprintf(format, args...))
}

// errorFor converts a handler error to a JSON-RPC error.
func errorFor(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if code, ok := crowdsale.Code(err); ok {
		return newError(int(code), crowdsale.Name(err), err.Error())
	}
	switch {
	case processor.IsMalformed(err):
		return newError(CodeInvalidParams, "InvalidInstruction", err.Error())
	case errors.Is(err, instruction.ErrSignerMismatch):
		return newError(CodeInvalidParams, "InvalidInstruction", err.Error())
	case errors.Is(err, token.ErrMintAuthority):
		return newError(int(mustCode(crowdsale.ErrUnauthorized)), "Unauthorized", err.Error())
	case errors.Is(err, token.ErrProgramAddress):
		return newError(int(mustCode(crowdsale.ErrInvalidAccount)), "InvalidAccount", err.Error())
	case errors.Is(err, token.ErrMintMismatch):
		return newError(int(mustCode(crowdsale.ErrMintMismatch)), "MintMismatch", err.Error())
	case errors.Is(err, token.ErrOverflow):
		return newError(int(mustCode(crowdsale.ErrArithmeticOverflow)), "ArithmeticOverflow", err.Error())
	case errors.Is(err, storage.ErrDuplicateKey):
		return newError(CodeInvalidParams, "AccountInUse", err.Error())
	case errors.Is(err, storage.ErrConflict):
		return newError(CodeInternal, "Conflict", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return newError(int(mustCode(crowdsale.ErrAccountNotInitialized)), "AccountNotInitialized", err.Error())
	}
	return newError(CodeInternal, "Internal", err.Error())
}

func mustCode(err error) uint32 {
	code, _ := crowdsale.Code(err)
	return code
}
