// Copyright 2015 The MOAC-core Authors
// This file is part of the MOAC-core library.
//
// The MOAC-core library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The MOAC-core library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the MOAC-core library. If not, see <http://www.gnu.org/licenses/>.

// Package message implements the DHT's wire format: JSON-encoded tagged
// variant messages, correlated by a per-request Cookie. This plays the
// role of the teacher's packet interface in p2p/discover/udp.go, minus
// the signature/MAC framing (RPC authentication is out of scope).
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/MOACChain/dht/node"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxDatagram is the largest payload the multiplexer will attempt to
// send or decode, per spec section 6.
const MaxDatagram = 64 * 1024

// Kind tags the arm of a Message.
type Kind string

const (
	KindPing       Kind = "ping"
	KindFindNode   Kind = "find_node"
	KindFindValue  Kind = "find_value"
	KindStore      Kind = "store"
	KindPong       Kind = "pong"
	KindFoundNode  Kind = "found_node"
	KindFoundValue Kind = "found_value"
	KindTimeout    Kind = "timeout" // synthetic, never sent on the wire
)

// Cookie is an opaque per-request correlation token, unique across
// concurrently outstanding requests on a given Server. Generated with
// google/uuid so uniqueness holds by construction without any shared
// counter state (see SPEC_FULL.md's resolution of the cookie-uniqueness
// open question).
type Cookie [16]byte

// NewCookie returns a freshly generated, effectively-unique cookie.
func NewCookie() Cookie {
	u := uuid.New()
	var c Cookie
	copy(c[:], u[:])
	return c
}

func (c Cookie) String() string {
	id, _ := uuid.FromBytes(c[:])
	return id.String()
}

// Message is implemented by every request/response/sentinel arm.
type Message interface {
	Kind() Kind
	GetCookie() Cookie
}

// request is implemented by the arms that initiate an RPC.
type request interface {
	Message
	isRequest()
}

// response is implemented by the arms that complete an RPC.
type response interface {
	Message
	isResponse()
}

type Ping struct {
	CookieField Cookie `json:"cookie"`
}

func (m *Ping) Kind() Kind        { return KindPing }
func (m *Ping) GetCookie() Cookie { return m.CookieField }
func (m *Ping) isRequest()        {}

type FindNode struct {
	CookieField Cookie      `json:"cookie"`
	Target      node.NodeId `json:"target"`
}

func (m *FindNode) Kind() Kind        { return KindFindNode }
func (m *FindNode) GetCookie() Cookie { return m.CookieField }
func (m *FindNode) isRequest()        {}

type FindValue struct {
	CookieField Cookie      `json:"cookie"`
	Key         node.NodeId `json:"key"`
}

func (m *FindValue) Kind() Kind        { return KindFindValue }
func (m *FindValue) GetCookie() Cookie { return m.CookieField }
func (m *FindValue) isRequest()        {}

type Store struct {
	CookieField Cookie      `json:"cookie"`
	Key         node.NodeId `json:"key"`
	Value       []byte      `json:"value"`
}

func (m *Store) Kind() Kind        { return KindStore }
func (m *Store) GetCookie() Cookie { return m.CookieField }
func (m *Store) isRequest()        {}

type Pong struct {
	CookieField Cookie `json:"cookie"`
}

func (m *Pong) Kind() Kind        { return KindPong }
func (m *Pong) GetCookie() Cookie { return m.CookieField }
func (m *Pong) isResponse()       {}

type FoundNode struct {
	CookieField Cookie     `json:"cookie"`
	Nodes       []WireNode `json:"nodes"`
}

func (m *FoundNode) Kind() Kind        { return KindFoundNode }
func (m *FoundNode) GetCookie() Cookie { return m.CookieField }
func (m *FoundNode) isResponse()       {}

type FoundValue struct {
	CookieField Cookie `json:"cookie"`
	Found       bool   `json:"found"`
	Value       []byte `json:"value,omitempty"`
	// Nodes carries closer peers when the key was not found locally,
	// same fallback the teacher's findvalue handling favors implicitly
	// by always returning something useful to the caller.
	Nodes []WireNode `json:"nodes,omitempty"`
}

func (m *FoundValue) Kind() Kind        { return KindFoundValue }
func (m *FoundValue) GetCookie() Cookie { return m.CookieField }
func (m *FoundValue) isResponse()       {}

// Timeout is the synthetic, in-process-only sentinel delivered to a
// waiting caller when a request's deadline elapses before any matching
// response arrives. It must never be serialized onto the wire.
type Timeout struct {
	CookieField Cookie `json:"-"`
}

func (m *Timeout) Kind() Kind        { return KindTimeout }
func (m *Timeout) GetCookie() Cookie { return m.CookieField }
func (m *Timeout) isResponse()       {}

// WireNode is the JSON projection of a node.Node used inside FoundNode
// payloads.
type WireNode struct {
	Addr string      `json:"addr"`
	ID   node.NodeId `json:"id"`
}

func ToWireNodes(nodes []node.Node) []WireNode {
	out := make([]WireNode, len(nodes))
	for i, n := range nodes {
		out[i] = WireNode{Addr: n.Addr, ID: n.ID}
	}
	return out
}

func FromWireNodes(wire []WireNode) []node.Node {
	out := make([]node.Node, len(wire))
	for i, w := range wire {
		out[i] = node.New(w.Addr, w.ID)
	}
	return out
}

var (
	ErrTooLarge  = errors.New("message: encoded payload exceeds max datagram size")
	ErrDecode    = errors.New("message: malformed datagram")
	ErrNotOnWire = errors.New("message: Timeout must never be encoded")
)

// envelope is the tagged-union-on-the-wire shape: a type tag plus the
// arm's own fields, nested as a JSON object under "body". jsoniter (ConfigCompatibleWithStandardLibrary)
// round-trips struct tags exactly like encoding/json would, which keeps
// this format a drop-in match for the spec's "JSON-encoded tagged-variant
// messages" wire description.
type envelope struct {
	Type Kind            `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Encode serializes a request/response arm to bytes. Encoding a Timeout
// is a programmer error (Timeout is in-process only) and returns
// ErrNotOnWire rather than silently emitting bytes.
func Encode(m Message) ([]byte, error) {
	if m.Kind() == KindTimeout {
		return nil, ErrNotOnWire
	}
	body, err := jsonAPI.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("message: encode body: %w", err)
	}
	buf, err := jsonAPI.Marshal(envelope{Type: m.Kind(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("message: encode envelope: %w", err)
	}
	if len(buf) > MaxDatagram {
		return nil, ErrTooLarge
	}
	return buf, nil
}

// Decode parses a datagram into a Message. Any malformed datagram,
// including one that claims to be a Timeout, yields ErrDecode and must
// be dropped by the caller per spec section 7 (decode errors are never
// surfaced to lookup logic).
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 || len(buf) > MaxDatagram {
		return nil, ErrDecode
	}
	var env envelope
	if err := jsonAPI.Unmarshal(buf, &env); err != nil {
		return nil, ErrDecode
	}
	var m Message
	switch env.Type {
	case KindPing:
		m = &Ping{}
	case KindFindNode:
		m = &FindNode{}
	case KindFindValue:
		m = &FindValue{}
	case KindStore:
		m = &Store{}
	case KindPong:
		m = &Pong{}
	case KindFoundNode:
		m = &FoundNode{}
	case KindFoundValue:
		m = &FoundValue{}
	default:
		// KindTimeout included: a Timeout is impossible to observe on
		// the wire by construction, but if one is ever crafted and
		// sent to us, treat it the same as any other unknown tag.
		return nil, ErrDecode
	}
	if err := jsonAPI.Unmarshal(env.Body, m); err != nil {
		return nil, ErrDecode
	}
	return m, nil
}

// IsRequest reports whether m is a request-arm message.
func IsRequest(m Message) bool {
	_, ok := m.(request)
	return ok
}

// IsResponse reports whether m is a response-arm message (including the
// synthetic Timeout).
func IsResponse(m Message) bool {
	_, ok := m.(response)
	return ok
}
