package wire

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"gopkg.in/guregu/null.v3"
)

// Request is one UI-originated envelope. ID is null when the originator
// supplied no callback, so the remote side knows nothing awaits an answer.
type Request struct {
	ID      null.Int        `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the remote side's answer to an outbound request.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
}

// Kind classifies an inbound text frame.
type Kind int

const (
	// KindCommand is an opaque payload forwarded to the UI bridge as-is.
	KindCommand Kind = iota
	// KindResponse correlates with a previously issued RequestID.
	KindResponse
)

// Valid reports whether data is well-formed JSON. Malformed frames are
// logged and dropped by the transport without closing the connection.
func Valid(data []byte) bool {
	return gjson.ValidBytes(data)
}

// Classify decides whether a valid inbound frame is a correlated response
// or an opaque command. A frame is a response iff it is an object carrying
// a numeric "id" and a "result" member; DevTools-level commands also carry
// "id" fields but never "result", so they pass through untouched.
func Classify(data []byte) Kind {
	if !gjson.ParseBytes(data).IsObject() {
		return KindCommand
	}
	idField := gjson.GetBytes(data, "id")
	if !idField.Exists() || idField.Type != gjson.Number {
		return KindCommand
	}
	if !gjson.GetBytes(data, "result").Exists() {
		return KindCommand
	}
	return KindResponse
}

// DecodeResponse parses a response envelope.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return resp, nil
}

// EncodeBatch serializes queued request envelopes as one text frame,
// preserving enqueue order.
func EncodeBatch(batch []Request) ([]byte, error) {
	data, err := sonic.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch of %d envelopes: %w", len(batch), err)
	}
	return data, nil
}

// NewRequest builds a request envelope. The wire id is set only when the
// caller registered a callback for the allocated id.
func NewRequest(requestID int64, awaited bool, payload json.RawMessage) Request {
	req := Request{Payload: payload}
	if awaited {
		req.ID = null.IntFrom(requestID)
	}
	return req
}
