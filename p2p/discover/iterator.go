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
	"sort"
	"sync"

	"github.com/MOACChain/dht/node"
)

// ClosestNodesIterator drives an iterative closest-nodes lookup. It
// holds a bounded frontier of undispatched candidates and a probed set
// of candidates already popped for dispatch, and hands candidates out
// one at a time through Next as long as they are still useful: once k
// candidates closer than a given node have been probed, that node is no
// longer worth probing (see the cutoff rule in Next).
//
// A ClosestNodesIterator is safe for concurrent use: AddNodes is
// typically called from several goroutines feeding back probe results,
// while a single consumer goroutine drains Next.
type ClosestNodesIterator struct {
	key node.NodeId
	k   int

	// probedMu guards probed. Lock order is always probedMu before
	// frontierMu in any path that needs both, to keep AddNodes (which
	// only ever needs a brief critical section) from ever deadlocking
	// against Next (which parks on frontierCond for a potentially long
	// time). Next observes the same order by releasing frontierMu
	// before acquiring probedMu, then re-acquiring frontierMu and
	// re-checking state.
	probedMu sync.Mutex
	probed   []node.Node // kept sorted ascending by distance to key

	frontierMu       sync.Mutex
	frontierCond     *sync.Cond
	frontier         []node.Node // kept sorted ascending by distance to key, len <= k
	pendingReceivers int         // count of live attached streams
}

// NewClosestNodesIterator builds an iterator targeting key, keeping at
// most k candidates in its frontier at a time, seeded with an initial
// set of candidates (typically the local routing table's closest
// entries to key).
func NewClosestNodesIterator(key node.NodeId, k int, seeds []node.Node) *ClosestNodesIterator {
	it := &ClosestNodesIterator{key: key, k: k}
	it.frontierCond = sync.NewCond(&it.frontierMu)
	it.AddNodes(seeds)
	return it
}

// AddNodes merges candidates into the frontier: duplicates (by address
// and id, against both the frontier and the already-probed set) are
// dropped, the result is re-sorted by distance to key, and truncated to
// the k closest. Any waiting Next call is woken.
func (it *ClosestNodesIterator) AddNodes(candidates []node.Node) {
	it.probedMu.Lock()
	defer it.probedMu.Unlock()
	it.frontierMu.Lock()
	defer it.frontierMu.Unlock()

	for _, n := range candidates {
		if containsNode(it.probed, n) || containsNode(it.frontier, n) {
			continue
		}
		it.frontier = append(it.frontier, n)
	}
	sortByDistance(it.frontier, it.key)
	if len(it.frontier) > it.k {
		it.frontier = it.frontier[:it.k]
	}
	it.frontierCond.Broadcast()
}

// AttachStream registers stream as a pending source of future
// candidates: Next will keep blocking (rather than declaring the
// lookup over) as long as any attached stream has not yet closed,
// even if the frontier is momentarily empty. Each batch read off
// stream is merged in via AddNodes. The pending-receiver count is
// decremented exactly once, by a defer in the goroutine that drains
// stream, when stream is closed (or when that goroutine panics). A
// stream that is never closed stays counted as pending.
func (it *ClosestNodesIterator) AttachStream(stream <-chan []node.Node) {
	it.frontierMu.Lock()
	it.pendingReceivers++
	it.frontierCond.Broadcast()
	it.frontierMu.Unlock()

	go func() {
		defer func() {
			it.frontierMu.Lock()
			it.pendingReceivers--
			it.frontierCond.Broadcast()
			it.frontierMu.Unlock()
		}()
		for batch := range stream {
			it.AddNodes(batch)
		}
	}()
}

// SnapshotClosest returns (a copy of) the n closest candidates seen so
// far, across both probed and frontier, without disturbing iterator
// state. Useful for a caller that wants an answer without waiting for
// the lookup to fully terminate.
func (it *ClosestNodesIterator) SnapshotClosest(n int) []node.Node {
	it.probedMu.Lock()
	defer it.probedMu.Unlock()
	it.frontierMu.Lock()
	defer it.frontierMu.Unlock()

	all := make([]node.Node, 0, len(it.probed)+len(it.frontier))
	all = append(all, it.probed...)
	all = append(all, it.frontier...)
	sortByDistance(all, it.key)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Next blocks until either a candidate worth probing is available, or
// the lookup has genuinely run dry (empty frontier and no attached
// stream can still deliver more), in which case it returns (zero, false).
//
// On each iteration: the cutoff is the distance-to-key of the k-th
// closest already-probed candidate (if at least k have been probed;
// otherwise there is no cutoff). The closest frontier candidate is
// popped and moved into probed unconditionally. If its distance is not
// strictly closer than the cutoff, it is discarded (already probed,
// never handed to the caller) and the loop retries with the next
// frontier candidate; otherwise it is returned.
func (it *ClosestNodesIterator) Next() (node.Node, bool) {
	for {
		it.frontierMu.Lock()
		for len(it.frontier) == 0 && it.pendingReceivers > 0 {
			it.frontierCond.Wait()
		}
		empty := len(it.frontier) == 0
		it.frontierMu.Unlock()
		if empty {
			return node.Node{}, false
		}

		// Re-acquire in the fixed probed-then-frontier order to mutate
		// both; re-validate frontier since we dropped the lock above.
		it.probedMu.Lock()
		it.frontierMu.Lock()
		if len(it.frontier) == 0 {
			it.frontierMu.Unlock()
			it.probedMu.Unlock()
			continue
		}

		cutoff, hasCutoff := it.cutoffLocked()

		n := it.frontier[0]
		it.frontier = it.frontier[1:]
		it.probed = insertSorted(it.probed, n, it.key)

		it.frontierMu.Unlock()
		it.probedMu.Unlock()

		if !hasCutoff || n.Dist(it.key).Less(cutoff) {
			return n, true
		}
		// n was not closer than the cutoff: it stays in probed (it has
		// been accounted for) but is not yielded. Try the next one.
	}
}

// cutoffLocked computes the current cutoff distance from probed, which
// must already be sorted ascending by distance to key. Caller must hold
// probedMu.
func (it *ClosestNodesIterator) cutoffLocked() (node.Distance, bool) {
	if len(it.probed) < it.k {
		return node.Distance{}, false
	}
	return it.probed[it.k-1].Dist(it.key), true
}

func containsNode(list []node.Node, n node.Node) bool {
	for _, existing := range list {
		if existing.Equal(n) {
			return true
		}
	}
	return false
}

func sortByDistance(nodes []node.Node, key node.NodeId) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Dist(key).Less(nodes[j].Dist(key))
	})
}

// insertSorted inserts n into a slice already sorted ascending by
// distance to key, keeping it sorted.
func insertSorted(nodes []node.Node, n node.Node, key node.NodeId) []node.Node {
	d := n.Dist(key)
	i := sort.Search(len(nodes), func(i int) bool {
		return !nodes[i].Dist(key).Less(d)
	})
	nodes = append(nodes, node.Node{})
	copy(nodes[i+1:], nodes[i:])
	nodes[i] = n
	return nodes
}
