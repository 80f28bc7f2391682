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

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOACChain/dht/node"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cookie := NewCookie()
	cases := []Message{
		&Ping{CookieField: cookie},
		&FindNode{CookieField: cookie, Target: node.NodeId{0xaa}},
		&FindValue{CookieField: cookie, Key: node.NodeId{0xbb}},
		&Store{CookieField: cookie, Key: node.NodeId{0xcc}, Value: []byte("hello")},
		&Pong{CookieField: cookie},
		&FoundNode{CookieField: cookie, Nodes: []WireNode{{Addr: "1.2.3.4:5", ID: node.NodeId{0x01}}}},
		&FoundValue{CookieField: cookie, Found: true, Value: []byte("value")},
	}
	for _, m := range cases {
		buf, err := Encode(m)
		require.NoErrorf(t, err, "Encode(%T)", m)

		got, err := Decode(buf)
		require.NoErrorf(t, err, "Decode(%T)", m)

		assert.Equal(t, m.Kind(), got.Kind())
		assert.Equal(t, cookie, got.GetCookie())
	}
}

func TestEncodeRejectsTimeout(t *testing.T) {
	_, err := Encode(&Timeout{CookieField: NewCookie()})
	assert.Equal(t, ErrNotOnWire, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsTimeoutTag(t *testing.T) {
	forged := []byte(`{"type":"timeout","body":{}}`)
	_, err := Decode(forged)
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	forged := []byte(`{"type":"not_a_real_kind","body":{}}`)
	_, err := Decode(forged)
	assert.Error(t, err)
}

func TestCookiesAreDistinct(t *testing.T) {
	assert.NotEqual(t, NewCookie(), NewCookie())
}

func TestIsRequestIsResponse(t *testing.T) {
	assert.True(t, IsRequest(&Ping{}), "Ping must be a request")
	assert.False(t, IsResponse(&Ping{}), "Ping must not be a response")
	assert.True(t, IsResponse(&Pong{}), "Pong must be a response")
	assert.True(t, IsResponse(&Timeout{}), "Timeout must count as a response arm")
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxDatagram)
	m := &Store{CookieField: NewCookie(), Key: node.NodeId{0x01}, Value: big}
	_, err := Encode(m)
	assert.Equal(t, ErrTooLarge, err)
}
