package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the client core.
var (
	// ErrNotRunning indicates no live server connection is reachable.
	// Its text is part of the callback contract surfaced to hosts.
	ErrNotRunning = errors.New("not running")

	// ErrShutdown indicates host teardown is in progress; new requests
	// are refused so shutdown cannot deadlock on them.
	ErrShutdown = errors.New("client shut down")

	// ErrAlreadyStarted indicates the server process is already running.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrTimeout indicates a synchronous request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedResponse indicates the server replied with a shape
	// this client does not recognize. Distinct from "no data": a
	// malformed reply is a server bug and must stay visible.
	ErrMalformedResponse = errors.New("malformed response from server")
)

// RPCError is a structured JSON-RPC error from the server. Its Message
// is surfaced to users verbatim, never reinterpreted.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ServerMessage extracts the verbatim server-provided text from an
// error chain, falling back to the Go error text.
func ServerMessage(err error) string {
	if err == nil {
		return ""
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	return err.Error()
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeRequestFailed        = -32803
)
