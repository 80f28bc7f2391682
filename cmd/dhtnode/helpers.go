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

package main

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/MOACChain/dht/node"
)

func randomID() (node.NodeId, error) {
	var id node.NodeId
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generating random id: %w", err)
	}
	return id, nil
}

func splitBootnodes(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBootnode parses an "addr@hexid" bootstrap entry, the same shape
// the teacher uses for its enode URLs minus the scheme and pubkey
// crypto (RPC authentication is out of scope).
func parseBootnode(entry string) (node.Node, error) {
	at := strings.LastIndex(entry, "@")
	if at < 0 {
		return node.Node{}, fmt.Errorf("bootnode %q: missing @hexid suffix", entry)
	}
	addr, hexID := entry[:at], entry[at+1:]
	id, err := node.ParseID(hexID)
	if err != nil {
		return node.Node{}, fmt.Errorf("bootnode %q: %w", entry, err)
	}
	return node.New(addr, id), nil
}
