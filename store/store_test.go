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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOACChain/dht/node"
)

func TestPutGet(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)

	key := node.NodeId{0x01}
	s.Put(key, []byte("hello"))

	got, ok := s.Get(key)
	require.True(t, ok, "expected value to be present")
	assert.Equal(t, "hello", string(got))
}

func TestGetMissingKey(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)

	_, ok := s.Get(node.NodeId{0xff})
	assert.False(t, ok, "expected missing key to report not found")
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)

	a, b, c := node.NodeId{0x01}, node.NodeId{0x02}, node.NodeId{0x03}
	s.Put(a, []byte("a"))
	s.Put(b, []byte("b"))
	s.Put(c, []byte("c")) // evicts a, the least recently used

	_, ok := s.Get(a)
	assert.False(t, ok, "expected a to have been evicted")

	_, ok = s.Get(b)
	assert.True(t, ok, "expected b to still be present")

	_, ok = s.Get(c)
	assert.True(t, ok, "expected c to still be present")
}
