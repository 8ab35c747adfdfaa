package session

import (
	"encoding/json"
	"fmt"

	"github.com/openvelo/openvelo/internal/common"
)

// Version is the protocol tag carried in every envelope.
const Version = "2.0"

// Method names spoken on the device channel.
const (
	MethodCurrentStatus   = "current-status"
	MethodLocationUpdate  = "locationUpdate"
	MethodLockStateUpdate = "lockStateUpdate"
	MethodLock            = "lock"
	MethodUnlock          = "unlock"
)

// ErrorObject is the error member of a response envelope.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const codeMethodNotFound = -32601

// Message is the JSON-RPC style envelope used on the device channel.
// A message with a method is a call (id set) or a notification (id
// absent); a message without a method but with an id is a response.
type Message struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }
func (m *Message) IsCall() bool         { return m.Method != "" && m.ID != nil }
func (m *Message) IsResponse() bool     { return m.Method == "" && m.ID != nil }

// parseMessage decodes and classifies one wire message. Anything that is
// neither a call, a notification nor a response is a protocol violation.
func parseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", common.ErrProtocolViolation, err)
	}
	if msg.Method == "" && msg.ID == nil {
		return nil, fmt.Errorf("%w: message has neither method nor id", common.ErrProtocolViolation)
	}
	return &msg, nil
}

func marshalCall(id uint64, method string, params any) ([]byte, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Message{JSONRPC: Version, ID: &id, Method: method, Params: raw})
}

func marshalErrorResponse(id uint64, code int, message string) ([]byte, error) {
	return json.Marshal(Message{
		JSONRPC: Version,
		ID:      &id,
		Error:   &ErrorObject{Code: code, Message: message},
	})
}

// CurrentStatus is the mandatory first notification after verification.
// Older firmware sends it as a bare object instead of an envelope, so the
// location fields are optional.
type CurrentStatus struct {
	Locked bool     `json:"locked"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Time   int64    `json:"time,omitempty"`
}

// LocationUpdate carries a device position fix. Time is unix milliseconds;
// zero means the server should stamp the arrival time.
type LocationUpdate struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Time int64   `json:"time,omitempty"`
}

// LockStateUpdate reports a change of the physical lock.
type LockStateUpdate struct {
	Locked bool  `json:"locked"`
	Time   int64 `json:"time,omitempty"`
}
