package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/modoterra/gatewatch/pkg/core"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v. An empty payload leaves
// v untouched.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Method, err)
	}
	return nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	return newMessage(MsgTypeReq, fmt.Sprintf("req-%d", reqCounter.Add(1)), method, data)
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	return newMessage(MsgTypeRes, reqID, method, data)
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	return newMessage(MsgTypeEvt, fmt.Sprintf("evt-%d", reqCounter.Add(1)), method, data)
}

func newMessage(typ MsgType, id, method string, data any) (Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{
		Type:   typ,
		ID:     id,
		Method: method,
		Data:   raw,
	}, nil
}

// Methods
const (
	MethodPing         = "Ping"
	MethodStatus       = "Status"
	MethodNetworkFeed  = "NetworkFeed"
	MethodNetworkPoll  = "NetworkPoll"
	MethodNetworkClear = "NetworkClear"
	MethodNetworkPause = "NetworkPause"
	MethodActivity     = "Activity"
	MethodLogActivity  = "LogActivity"

	EventNetworkEntries = "network.entries"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong     bool   `json:"pong"`
	Instance string `json:"instance,omitempty"`
	Version  string `json:"version,omitempty"`
}

// FeedRequest is the payload for NetworkFeed.
type FeedRequest struct {
	SinceID int64 `json:"since_id"`
	Limit   int   `json:"limit,omitempty"`
}

// FeedResponse is the response to NetworkFeed.
type FeedResponse struct {
	Entries []core.RetainedEntry `json:"entries"`
	Paused  bool                 `json:"paused"`
}

// PollRequest is the payload for NetworkPoll.
type PollRequest struct {
	Window int `json:"window,omitempty"`
}

// PauseRequest is the payload for NetworkPause. A nil Pause toggles.
type PauseRequest struct {
	Pause *bool `json:"pause,omitempty"`
}

// PauseResponse is the response to NetworkPause.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ClearResponse is the response to NetworkClear.
type ClearResponse struct {
	Success bool `json:"success"`
}
