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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOACChain/dht/node"
)

func TestTableClosestOrdering(t *testing.T) {
	self := idByte(0x00)
	tbl := NewTable(self)

	tbl.Add(nodeByte(0xff))
	tbl.Add(nodeByte(0x10))
	tbl.Add(nodeByte(0x01))

	closest := tbl.Closest(zeroKey, 2)
	require.Len(t, closest, 2)
	assert.True(t, closest[0].Equal(nodeByte(0x01)), "closest[0] = %v, want 0x01", closest[0])
	assert.True(t, closest[1].Equal(nodeByte(0x10)), "closest[1] = %v, want 0x10", closest[1])
}

func TestTableIgnoresSelf(t *testing.T) {
	self := idByte(0xaa)
	tbl := NewTable(self)
	tbl.Add(node.New("127.0.0.1:0", self))

	assert.Empty(t, tbl.Closest(zeroKey, 10), "expected self to be ignored")
}

func TestTableLastSeenUpdatedOnAdd(t *testing.T) {
	tbl := NewTable(idByte(0x00))
	n := nodeByte(0x42)

	_, ok := tbl.LastSeen(n.ID)
	assert.False(t, ok, "expected no liveness entry before Add")

	tbl.Add(n)
	_, ok = tbl.LastSeen(n.ID)
	assert.True(t, ok, "expected a liveness entry after Add")
}
