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
	"math/bits"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/MOACChain/dht/node"
)

const (
	bucketSize = 16
	numBuckets = node.IDBytes*8 + 1

	// livenessTTL is how long a node is considered "seen recently"
	// before go-cache expires its liveness entry, the way the teacher's
	// bond expiry governs whether a node needs re-pinging.
	livenessTTL = 24 * time.Hour
)

// Table is a minimal k-bucket routing table: it seeds a
// ClosestNodesIterator's initial candidate list and records when each
// peer was last passed to Add. It does not ping peers; a full bucket
// drops its least recently added entry (see Add and DESIGN.md).
type Table struct {
	self node.NodeId

	mu      sync.Mutex
	buckets [numBuckets][]node.Node

	seen *cache.Cache
}

// NewTable builds an empty routing table for a node identified by self.
func NewTable(self node.NodeId) *Table {
	return &Table{
		self: self,
		seen: cache.New(livenessTTL, livenessTTL/2),
	}
}

// Add records n as known, placing it in the bucket for its distance
// from self and marking it seen just now. If that bucket is already at
// bucketSize, the oldest entry is evicted to make room (no re-ping
// challenge, unlike the teacher's bonding procedure).
func (t *Table) Add(n node.Node) {
	if n.ID == t.self {
		return
	}
	idx := logDistance(t.self, n.ID)

	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.buckets[idx]
	for i, existing := range b {
		if existing.Equal(n) {
			// move to the back (most recently seen)
			b = append(b[:i], b[i+1:]...)
			b = append(b, n)
			t.buckets[idx] = b
			t.seen.Set(n.ID.String(), time.Now(), cache.DefaultExpiration)
			return
		}
	}
	if len(b) >= bucketSize {
		b = b[1:]
	}
	t.buckets[idx] = append(b, n)
	t.seen.Set(n.ID.String(), time.Now(), cache.DefaultExpiration)
}

// LastSeen reports when n.ID was last recorded via Add, if it still has
// a live liveness entry.
func (t *Table) LastSeen(id node.NodeId) (time.Time, bool) {
	v, ok := t.seen.Get(id.String())
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// Closest returns up to n known nodes ordered by ascending distance to
// target, across all buckets. Intended to seed a ClosestNodesIterator.
func (t *Table) Closest(target node.NodeId, n int) []node.Node {
	t.mu.Lock()
	all := make([]node.Node, 0, bucketSize)
	for _, b := range t.buckets {
		all = append(all, b...)
	}
	t.mu.Unlock()

	sortByDistance(all, target)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// logDistance is the bit length of a.Dist(b): the classic Kademlia
// bucket index, where bucket i (i >= 1) holds peers whose distance lies
// in [2^(i-1), 2^i), and bucket 0 only identical ids.
func logDistance(a, b node.NodeId) int {
	d := a.Dist(b)
	lz := 0
	for _, by := range d {
		if by == 0 {
			lz += 8
			continue
		}
		lz += bits.LeadingZeros8(by)
		break
	}
	return len(d)*8 - lz
}
