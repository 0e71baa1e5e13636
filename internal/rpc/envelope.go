// Package rpc exposes a diagnostic session to remote front ends through a
// JSON request/response envelope carried over stdio lines or HTTP.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Error codes
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeOperationFailed = -32000
	CodeNotConnected    = -32001
)

// Request is one command. Params is method specific and may be absent.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error, never both
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is the error member of a response
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// nullID answers requests whose id could not be read
var nullID = json.RawMessage("0")

func errorResponse(id json.RawMessage, code int, format string, args ...any) Response {
	if len(id) == 0 {
		id = nullID
	}
	return Response{ID: id, Error: &Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}

func resultResponse(id json.RawMessage, result any) Response {
	if len(id) == 0 {
		id = nullID
	}
	return Response{ID: id, Result: result}
}

// decodeRequest parses one request, returning the error response to send when it is unusable
func decodeRequest(data []byte) (Request, *Response) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		resp := errorResponse(nil, CodeParseError, "Parse error: %v", err)
		return req, &resp
	}
	if req.Method == "" {
		resp := errorResponse(req.ID, CodeInvalidRequest, "Invalid request: method is required")
		return req, &resp
	}
	return req, nil
}
