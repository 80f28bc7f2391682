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

// Package discover implements the Node Discovery Protocol's two hardest
// parts: an RPC multiplexer over a shared datagram socket (Server) and
// the iterative closest-nodes lookup driver (ClosestNodesIterator) that
// rides on top of it.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MOACChain/dht/message"
	"github.com/MOACChain/dht/node"
)

var errDuplicateToken = errors.New("discover: cookie already pending for this peer")

// Incoming is an unsolicited message read off the socket: either a
// request arm nobody is waiting on, or a response whose cookie matched
// nothing in the pending map.
type Incoming struct {
	Addr net.Addr
	Msg  message.Message
}

// pendingKey is the RPC correlation key: the peer we sent to, and the
// cookie we tagged the request with. Responses must come back from the
// same address the request was sent to, per spec section 6.
type pendingKey struct {
	addr   string
	cookie message.Cookie
}

// Server is the RPC multiplexer: one bound net.PacketConn, a map from
// (peer, cookie) to a single-shot response sink, and a receive loop that
// either completes a pending request or emits the datagram as an
// Incoming for handler dispatch.
type Server struct {
	conn net.PacketConn
	log  *logrus.Entry

	mu      sync.Mutex
	pending map[pendingKey]chan message.Message

	incoming chan Incoming

	closing   chan struct{}
	closeOnce sync.Once

	metrics *Metrics
	clock   *clockMonitor
}

// NewServer wraps conn and starts its receive loop. The caller owns
// conn's lifetime via Server.Close.
func NewServer(conn net.PacketConn, log *logrus.Entry, metrics *Metrics) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &Server{
		conn:     conn,
		log:      log,
		pending:  make(map[pendingKey]chan message.Message),
		incoming: make(chan Incoming, 64),
		closing:  make(chan struct{}),
		metrics:  metrics,
		clock:    newClockMonitor(defaultNTPPool, log),
	}
	go s.readLoop()
	return s
}

// Close shuts the server down: the socket is closed, which ends the
// receive loop, and the receive loop then closes the Incoming channel.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		err = s.conn.Close()
	})
	return err
}

// Incoming returns the stream of unsolicited requests (and orphaned
// responses) the receive loop could not match to a pending sink.
func (s *Server) Incoming() <-chan Incoming {
	return s.incoming
}

func (s *Server) addPending(addr net.Addr, cookie message.Cookie) (chan message.Message, error) {
	key := pendingKey{addr: addr.String(), cookie: cookie}
	ch := make(chan message.Message, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[key]; exists {
		return nil, errDuplicateToken
	}
	s.pending[key] = ch
	return ch, nil
}

func (s *Server) removePending(addr net.Addr, cookie message.Cookie) (chan message.Message, bool) {
	key := pendingKey{addr: addr.String(), cookie: cookie}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return ch, ok
}

// dropPending removes a pending entry without delivering to it, used
// when the request datagram could not be written.
func (s *Server) dropPending(addr net.Addr, cookie message.Cookie) {
	key := pendingKey{addr: addr.String(), cookie: cookie}
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// SendRequest sends req to peer and blocks until the matching response
// arrives. It never times out on its own; use SendRequestTimeout for
// that.
func (s *Server) SendRequest(peer net.Addr, req message.Message) (message.Message, error) {
	ch, err := s.addPending(peer, req.GetCookie())
	if err != nil {
		return nil, err
	}
	if err := s.write(peer, req); err != nil {
		s.dropPending(peer, req.GetCookie())
		return nil, err
	}
	s.metrics.Requests.Inc(1)
	resp := <-ch
	s.clock.recordSuccess()
	return resp, nil
}

// SendRequestTimeout is SendRequest with a detached timer that delivers
// the synthetic Timeout sentinel into the same single-shot sink after
// timeout elapses. Whichever of {real response, Timeout} removes the
// pending entry first delivers into the capacity-1 channel; the loser
// finds no entry and sends nothing.
func (s *Server) SendRequestTimeout(peer net.Addr, req message.Message, timeout time.Duration) (message.Message, error) {
	cookie := req.GetCookie()
	ch, err := s.addPending(peer, cookie)
	if err != nil {
		return nil, err
	}
	if err := s.write(peer, req); err != nil {
		s.dropPending(peer, cookie)
		return nil, err
	}
	s.metrics.Requests.Inc(1)

	timer := time.AfterFunc(timeout, func() {
		if pch, ok := s.removePending(peer, cookie); ok {
			pch <- &message.Timeout{CookieField: cookie}
		}
	})

	resp := <-ch
	timer.Stop()
	if resp.Kind() == message.KindTimeout {
		s.metrics.Timeouts.Inc(1)
		s.clock.recordTimeout()
	} else {
		s.clock.recordSuccess()
	}
	return resp, nil
}

// SendResponse is a fire-and-forget send: no pending-map interaction.
func (s *Server) SendResponse(peer net.Addr, resp message.Message) error {
	return s.write(peer, resp)
}

func (s *Server) write(peer net.Addr, m message.Message) error {
	buf, err := message.Encode(m)
	if err != nil {
		// Encoding failures are programmer errors (e.g. trying to put a
		// Timeout on the wire): abort rather than surface a transport error.
		panic(fmt.Sprintf("discover: cannot encode %T: %v", m, err))
	}
	_, err = s.conn.WriteTo(buf, peer)
	if err != nil {
		s.log.WithError(err).WithField("peer", peer).Debug("write failed")
	}
	return err
}

// ProbeResult pairs a completed probe's target with the response (or
// Timeout) it produced.
type ProbeResult struct {
	Peer     node.Node
	Response message.Message
}

// SendMany fans a single logical request out to peers, a lazy sequence
// fed by the caller over a channel, issuing up to concurrency requests
// at a time. newRequest is called once per peer with a freshly
// generated cookie, so every outstanding request is distinct even
// though they share the same logical payload shape.
//
// Cancel ctx to stop: Go channels have no observable "receiver closed"
// signal the way the spec's reference model assumes, so ctx is the
// idiomatic stand-in the driver watches both while pulling peers and
// while handing results back, matching the "stop pulling as soon as the
// consumer is gone" requirement.
func (s *Server) SendMany(
	ctx context.Context,
	peers <-chan node.Node,
	newRequest func(message.Cookie) message.Message,
	timeout time.Duration,
	concurrency int,
) <-chan ProbeResult {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make(chan ProbeResult)
	sem := make(chan struct{}, concurrency)

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		defer wg.Wait()

		for {
			select {
			case <-ctx.Done():
				return
			case peer, ok := <-peers:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				wg.Add(1)
				go func(peer node.Node) {
					defer wg.Done()
					defer func() { <-sem }()

					addr, err := net.ResolveUDPAddr("udp", peer.Addr)
					if err != nil {
						s.log.WithError(err).WithField("peer", peer).Debug("skipping unresolvable peer")
						return
					}
					cookie := message.NewCookie()
					req := newRequest(cookie)
					s.metrics.Probes.Inc(1)
					resp, err := s.SendRequestTimeout(addr, req, timeout)
					if err != nil {
						return
					}
					select {
					case out <- ProbeResult{Peer: peer, Response: resp}:
					case <-ctx.Done():
					}
				}(peer)
			}
		}
	}()

	return out
}

// readLoop is the receive loop: it runs for the server's lifetime,
// decoding datagrams and either completing a pending sink or emitting
// the message as Incoming. Decode failures are silently dropped, per
// spec section 7.
func (s *Server) readLoop() {
	defer close(s.incoming)
	buf := make([]byte, message.MaxDatagram)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if isTemporary(err) {
				s.log.WithError(err).Debug("temporary read error, continuing")
				continue
			}
			select {
			case <-s.closing:
			default:
				s.log.WithError(err).Warn("read loop terminating on permanent error")
			}
			return
		}

		msg, err := message.Decode(buf[:n])
		if err != nil {
			continue
		}

		if message.IsResponse(msg) {
			// KindTimeout can never legitimately arrive on the wire
			// (message.Decode already refuses to produce one), but
			// guard defensively per spec section 6.
			if msg.Kind() == message.KindTimeout {
				continue
			}
			if ch, ok := s.removePending(addr, msg.GetCookie()); ok {
				ch <- msg
				s.metrics.Responses.Inc(1)
				continue
			}
			s.metrics.Unsolicited.Inc(1)
		}

		select {
		case s.incoming <- Incoming{Addr: addr, Msg: msg}:
		case <-s.closing:
			return
		}
	}
}

// isTemporary mirrors the teacher's netutil.IsTemporaryError check from
// p2p/discover/udp.go's readLoop, minus the rest of that package (IP
// restriction lists only exist to support NAT traversal, out of scope).
func isTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Temporary()
	}
	return false
}
