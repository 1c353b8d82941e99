package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Envelope Structure
// --------------------------------------------------------------------------

// Envelope is the single message format exchanged between nodes.
// Which fields are used depends on the type of message.
type Envelope struct {
	// Type of message
	MsgType MessageType `json:"type"`

	// ID correlates requests and replies (UUIDv4)
	ID string `json:"id"`

	// To lists the addresses that already saw this envelope
	To VisitedSet `json:"to"`

	// General fields
	Key   string       `json:"key,omitempty"`   // Used for: get, crdtGet, subscribe, query
	Entry *entry.Entry `json:"entry,omitempty"` // Used for: put, crdtPut

	// Sources are further signed entries of the same key whose change sets
	// complete the value of Entry. Used for: crdtPut replies and subscription pushes
	Sources []*entry.Entry `json:"sources,omitempty"`

	// Peer exchange
	Peer  *Peer  `json:"peer,omitempty"`  // Used for: ping, pong
	Peers []Peer `json:"peers,omitempty"` // Used for: pong

	// Query and function fields
	Keys     []string        `json:"keys,omitempty"`     // Used for: queryAck
	Function string          `json:"function,omitempty"` // Used for: function
	Args     json.RawMessage `json:"args,omitempty"`     // Used for: function
	Result   json.RawMessage `json:"result,omitempty"`   // Used for: functionReturn
	Status   FunctionStatus  `json:"status,omitempty"`   // Used for: functionReturn
	Err      string          `json:"err,omitempty"`      // Used for: functionReturn

	// Origin is the address of the node that answered (queryAck, functionReturn)
	Origin string `json:"origin,omitempty"`
	// Subscription is set on puts forwarded to a subscriber
	Subscription string `json:"subscription,omitempty"`
}

// Visit returns a shallow copy of the envelope whose visited set also contains addrs.
func (e *Envelope) Visit(addrs ...string) *Envelope {
	out := *e
	out.To = e.To.With(addrs...)
	return &out
}

// --------------------------------------------------------------------------
// Envelope Factory Functions
// --------------------------------------------------------------------------

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// NewGetRequest creates a new get request
func NewGetRequest(key string) *Envelope {
	return &Envelope{MsgType: MsgTGet, ID: NewID(), Key: key}
}

// NewCrdtGetRequest creates a new crdtGet request
func NewCrdtGetRequest(key string) *Envelope {
	return &Envelope{MsgType: MsgTCrdtGet, ID: NewID(), Key: key}
}

// NewPut creates a put envelope. An empty id creates a fresh one.
func NewPut(id string, e *entry.Entry) *Envelope {
	if id == "" {
		id = NewID()
	}
	return &Envelope{MsgType: MsgTPut, ID: id, Entry: e}
}

// NewCrdtPut creates a crdtPut envelope. An empty id creates a fresh one.
func NewCrdtPut(id string, e *entry.Entry) *Envelope {
	if id == "" {
		id = NewID()
	}
	return &Envelope{MsgType: MsgTCrdtPut, ID: id, Entry: e}
}

// NewCrdtReply creates a crdtPut envelope carrying every signed entry of a CRDT record.
func NewCrdtReply(id string, rec *entry.Record) *Envelope {
	signed := rec.Signed()
	env := NewCrdtPut(id, signed[0])
	if len(signed) > 1 {
		env.Sources = signed[1:]
	}
	return env
}

// NewPing creates a ping carrying the signed local peer record
func NewPing(self Peer) *Envelope {
	return &Envelope{MsgType: MsgTPing, ID: NewID(), Peer: &self}
}

// NewPong creates a pong carrying the signed local peer record and the known peers
func NewPong(id string, self Peer, known []Peer) *Envelope {
	return &Envelope{MsgType: MsgTPong, ID: id, Peer: &self, Peers: known}
}

// NewSubscribeRequest creates a new subscribe request. The envelope id is the subscription id.
func NewSubscribeRequest(key string) *Envelope {
	return &Envelope{MsgType: MsgTSubscribe, ID: NewID(), Key: key}
}

// NewQueryRequest creates a new query request for a key prefix
func NewQueryRequest(prefix string) *Envelope {
	return &Envelope{MsgType: MsgTQuery, ID: NewID(), Key: prefix}
}

// NewQueryAck creates a query acknowledgement
func NewQueryAck(id, origin string, keys []string) *Envelope {
	if keys == nil {
		keys = []string{}
	}
	return &Envelope{MsgType: MsgTQueryAck, ID: id, Origin: origin, Keys: keys}
}

// NewFunctionRequest creates a new function call request
func NewFunctionRequest(name string, args json.RawMessage) *Envelope {
	return &Envelope{MsgType: MsgTFunction, ID: NewID(), Function: name, Args: args}
}

// NewFunctionReturn creates a function result
func NewFunctionReturn(id, origin string, result json.RawMessage, status FunctionStatus, err error) *Envelope {
	msg := &Envelope{MsgType: MsgTFunctionReturn, ID: id, Origin: origin, Result: result, Status: status}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Function Status
// --------------------------------------------------------------------------

// FunctionStatus is the outcome of a remote function call.
type FunctionStatus string

const (
	StatusOK       FunctionStatus = "OK"
	StatusErr      FunctionStatus = "ERR"
	StatusNotFound FunctionStatus = "NOT_FOUND"
)

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of an envelope.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTGet:
		return "get"
	case MsgTPut:
		return "put"
	case MsgTCrdtGet:
		return "crdtGet"
	case MsgTCrdtPut:
		return "crdtPut"
	case MsgTPing:
		return "ping"
	case MsgTPong:
		return "pong"
	case MsgTSubscribe:
		return "subscribe"
	case MsgTQuery:
		return "query"
	case MsgTQueryAck:
		return "queryAck"
	case MsgTFunction:
		return "function"
	case MsgTFunctionReturn:
		return "functionReturn"
	default:
		return "unknown"
	}
}

// ParseMessageType converts the string representation back to a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	for t := MsgTGet; t <= MsgTFunctionReturn; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return MsgTUnknown, fmt.Errorf("unknown message type: %s", s)
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsReply reports whether the type answers a request by id.
func (t MessageType) IsReply() bool {
	return t == MsgTQueryAck || t == MsgTFunctionReturn
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota

	// data operations

	MsgTGet     // Request a plain value
	MsgTPut     // Signed plain value (also the reply to get)
	MsgTCrdtGet // Request a CRDT value
	MsgTCrdtPut // Signed CRDT changes (also the reply to crdtGet)

	// peer exchange

	MsgTPing // Announce the local peer record
	MsgTPong // Answer a ping with the known peers

	// listeners and scans

	MsgTSubscribe // Forward future puts on a key
	MsgTQuery     // Prefix scan
	MsgTQueryAck  // Prefix scan result

	// remote functions

	MsgTFunction       // Call a registered function
	MsgTFunctionReturn // Function result
)
