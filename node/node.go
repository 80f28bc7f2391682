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

// Package node defines the identifiers and addressed peers the DHT
// reasons about: a fixed-width NodeId with XOR distance, and a Node
// pairing one with a network address.
package node

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// IDBytes is the width of a NodeId in bytes (160 bits, as in the
// classic Kademlia paper).
const IDBytes = 20

// NodeId is a fixed-width opaque identifier. The zero value is the
// all-zero id and is valid (it is used as the default lookup key in
// several of the seeded scenarios).
type NodeId [IDBytes]byte

// ParseID parses a hex-encoded NodeId, as produced by String.
func ParseID(s string) (NodeId, error) {
	var id NodeId
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("node: bad id hex: %w", err)
	}
	if len(b) != IDBytes {
		return id, errors.New("node: id must be 20 bytes")
	}
	copy(id[:], b)
	return id, nil
}

func (id NodeId) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON renders the id as a hex string, so it travels over the
// wire the same way it prints in logs.
func (id NodeId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses the hex string form produced by MarshalJSON.
func (id *NodeId) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errors.New("node: id must be a JSON string")
	}
	parsed, err := ParseID(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Dist returns the XOR distance between id and key, interpreted as a
// big-endian unsigned integer. Callers compare two Dist results with
// bytes.Compare, which is exactly big-endian unsigned comparison for
// fixed-width byte arrays.
func (id NodeId) Dist(key NodeId) Distance {
	var d Distance
	for i := range id {
		d[i] = id[i] ^ key[i]
	}
	return d
}

// Distance is an XOR distance, orderable with bytes.Compare.
type Distance [IDBytes]byte

// Less reports whether d is strictly closer (numerically smaller) than o.
func (d Distance) Less(o Distance) bool {
	return bytes.Compare(d[:], o[:]) < 0
}

// Node is a peer: a network address paired with the NodeId it claims.
// Node values are immutable once constructed and are compared by the
// (Addr, ID) pair, matching the spec's equality-by-pair rule.
type Node struct {
	Addr string // host:port, suitable for net.ResolveUDPAddr("udp", Addr)
	ID   NodeId
}

// New builds a Node from a network address string and an id.
func New(addr string, id NodeId) Node {
	return Node{Addr: addr, ID: id}
}

// Dist returns the XOR distance from n's id to key.
func (n Node) Dist(key NodeId) Distance {
	return n.ID.Dist(key)
}

// Equal reports whether two nodes have the same address and id.
func (n Node) Equal(o Node) bool {
	return n.Addr == o.Addr && n.ID == o.ID
}

func (n Node) String() string {
	return fmt.Sprintf("%s@%s", n.ID.String()[:16], n.Addr)
}
