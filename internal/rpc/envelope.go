// Package rpc implements the newline-delimited JSON-RPC protocol the
// gateway and the tool registry daemon speak over a TCP socket. Each
// envelope is one JSON object on one line; a connection carries one
// outstanding request at a time from the client's point of view.
package rpc

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Methods served by the registry daemon.
const (
	MethodListTools   = "list_tools"
	MethodExecuteTool = "execute_tool"
)

// Request is one inbound envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *int64          `json:"id"`
}

// Response is one outbound envelope. Result and Error are mutually
// exclusive; ID always echoes the request that produced it.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      *int64          `json:"id"`
}

// RPCError is the error member of a response envelope. It doubles as
// the typed error the client surfaces to callers.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ExecuteToolParams is the params object of an execute_tool request.
type ExecuteToolParams struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// errorResponse builds a well-formed error envelope.
func errorResponse(id *int64, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	}
}

// resultResponse builds a result envelope, marshaling the payload.
func resultResponse(id *int64, payload any) Response {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(id, CodeInternalError, fmt.Sprintf("marshal result: %v", err))
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}
