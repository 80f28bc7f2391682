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

package discover

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOACChain/dht/message"
	"github.com/MOACChain/dht/node"
)

func newTestServer(t *testing.T) (*Server, net.Addr) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(conn, nil, nil)
	t.Cleanup(func() { s.Close() })
	return s, conn.LocalAddr()
}

// servePong answers every Ping it sees on s with a Pong carrying the
// same cookie, until s is closed.
func servePong(s *Server) {
	go func() {
		for in := range s.Incoming() {
			if ping, ok := in.Msg.(*message.Ping); ok {
				_ = s.SendResponse(in.Addr, &message.Pong{CookieField: ping.CookieField})
			}
		}
	}()
}

func TestSendRequestRoundTrip(t *testing.T) {
	client, _ := newTestServer(t)
	server, serverAddr := newTestServer(t)
	servePong(server)

	req := &message.Ping{CookieField: message.NewCookie()}
	resp, err := client.SendRequest(serverAddr, req)
	require.NoError(t, err)

	pong, ok := resp.(*message.Pong)
	require.True(t, ok, "expected *message.Pong, got %T", resp)
	assert.Equal(t, req.GetCookie(), pong.GetCookie())
}

func TestSendRequestTimeoutFiresWithoutAPeer(t *testing.T) {
	client, _ := newTestServer(t)

	// Nothing is listening on this address; the request will never be
	// answered, so the timeout sentinel must fire.
	deadEnd, err := net.ResolveUDPAddr("udp", "127.0.0.1:1")
	require.NoError(t, err)

	req := &message.Ping{CookieField: message.NewCookie()}
	resp, err := client.SendRequestTimeout(deadEnd, req, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, message.KindTimeout, resp.Kind())
}

func TestSendRequestTimeoutRealResponseWins(t *testing.T) {
	client, _ := newTestServer(t)
	server, serverAddr := newTestServer(t)
	servePong(server)

	req := &message.Ping{CookieField: message.NewCookie()}
	resp, err := client.SendRequestTimeout(serverAddr, req, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, message.KindPong, resp.Kind(), "expected Pong to win the race")
}

func TestUnsolicitedResponseDoesNotBlockCorrelation(t *testing.T) {
	client, clientAddr := newTestServer(t)
	server, serverAddr := newTestServer(t)

	// Send a Pong that nobody on the server side is waiting for. The
	// server's receive loop must treat it as unsolicited and keep
	// running.
	rogue := &message.Pong{CookieField: message.NewCookie()}
	require.NoError(t, client.SendResponse(serverAddr, rogue))

	select {
	case in := <-server.Incoming():
		assert.Equal(t, message.KindPong, in.Msg.Kind(), "expected the rogue Pong to surface as Incoming")
	case <-time.After(time.Second):
		t.Fatalf("server never observed the unsolicited response")
	}

	// Correlation must still work afterwards.
	servePong(server)
	req := &message.Ping{CookieField: message.NewCookie()}
	resp, err := client.SendRequest(serverAddr, req)
	require.NoError(t, err, "SendRequest after unsolicited response")
	assert.Equal(t, req.GetCookie(), resp.GetCookie(), "correlation broken after unsolicited response")
	_ = clientAddr
}

func TestSendManyRespectsConcurrencyBound(t *testing.T) {
	const concurrency = 2
	const peerCount = 6

	client, _ := newTestServer(t)

	var inFlight, maxInFlight int32
	servers := make([]*Server, peerCount)
	peers := make([]node.Node, peerCount)
	for i := 0; i < peerCount; i++ {
		srv, addr := newTestServer(t)
		servers[i] = srv
		peers[i] = node.New(addr.String(), idByte(byte(i+1)))

		go func(srv *Server) {
			for in := range srv.Incoming() {
				ping, ok := in.Msg.(*message.Ping)
				if !ok {
					continue
				}
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxInFlight)
					if cur <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, cur) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				_ = srv.SendResponse(in.Addr, &message.Pong{CookieField: ping.CookieField})
			}
		}(srv)
	}

	peerCh := make(chan node.Node)
	go func() {
		defer close(peerCh)
		for _, p := range peers {
			peerCh <- p
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := client.SendMany(ctx, peerCh, func(c message.Cookie) message.Message {
		return &message.Ping{CookieField: c}
	}, time.Second, concurrency)

	count := 0
	for range results {
		count++
	}
	assert.Equal(t, peerCount, count)
	assert.LessOrEqualf(t, int(atomic.LoadInt32(&maxInFlight)), concurrency,
		"observed more requests in flight than the concurrency bound")
}
