// Package protocol defines the JSON-RPC 2.0 message model and MCP method
// payloads shared by every transport backing and by the dispatcher.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP protocol version this implementation speaks by default.
const ProtocolVersion = "2024-11-05"

// JSONRPCVersion is the JSON-RPC version used by MCP.
const JSONRPCVersion = "2.0"

// SupportedProtocolVersions lists the versions this implementation can negotiate,
// newest first. Initialize negotiates the highest version both sides support.
var SupportedProtocolVersions = []string{"2025-06-18", "2024-11-05", "2024-10-07"}

// RequestID is the JSON-RPC request identifier. Per spec it is a string, a
// number, or absent (for notifications). A raw `any` is kept so both string
// and numeric ids fit; a numeric id decoded from JSON arrives as float64.
type RequestID = any

// Request is a JSON-RPC 2.0 request or notification. A Request with a nil ID
// is a notification and MUST NOT receive a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this frame carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Validate checks the request against the minimal JSON-RPC 2.0 shape rules.
func (r *Request) Validate() error {
	if r.JSONRPC != JSONRPCVersion {
		return ErrInvalidRequest
	}
	if r.Method == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      RequestID `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *Error    `json:"error,omitempty"`
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	// Cause is the underlying Go error, never serialized.
	Cause error `json:"-"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error with the given code, message and optional data.
func NewError(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// NewResponse builds a successful Response for id.
func NewResponse(id RequestID, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse builds a failed Response for id.
func NewErrorResponse(id RequestID, code int, message string, data any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: NewError(code, message, data)}
}

// NewNotification builds a Request with no id — i.e. a notification.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: JSONRPCVersion, Method: method, Params: raw}, nil
}

// NewRequest builds a Request with the given id.
func NewRequest(id RequestID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}

// Frame is the classification of a raw decoded JSON value into one of the
// four message shapes the wire format allows. Exactly one field is non-nil,
// except Batch which may itself mix requests/notifications/responses.
type Frame struct {
	Request  *Request
	Response *Response
	Batch    []json.RawMessage
}

// Classify inspects a decoded top-level JSON value and determines which of
// Request/Response/Batch it represents, per the wire-level rules in the
// message model: arrays are batches; objects with "method" are
// requests/notifications; objects with "result" or "error" (and no
// "method") are responses.
func Classify(raw json.RawMessage) (*Frame, error) {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrParseError
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseError, err)
		}
		if len(items) == 0 {
			return nil, ErrInvalidRequest
		}
		return &Frame{Batch: items}, nil
	case '{':
		var probe struct {
			Method *string `json:"method"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseError, err)
		}
		if probe.Method != nil {
			var req Request
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParseError, err)
			}
			return &Frame{Request: &req}, nil
		}
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseError, err)
		}
		return &Frame{Response: &resp}, nil
	default:
		return nil, ErrParseError
	}
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
