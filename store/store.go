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

// Package store backs the Store/FindValue RPCs with a bounded,
// in-memory value cache. Persistence is out of scope.
package store

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/MOACChain/dht/node"
)

// ValueStore holds key/value pairs accepted via Store RPCs, evicting the
// least recently used entry once it's full.
type ValueStore struct {
	cache *lru.Cache
}

// New builds a ValueStore holding at most size entries.
func New(size int) (*ValueStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ValueStore{cache: c}, nil
}

// Put records value under key, evicting the least recently used entry
// if the store is full.
func (s *ValueStore) Put(key node.NodeId, value []byte) {
	s.cache.Add(key, value)
}

// Get returns the value stored under key, if any.
func (s *ValueStore) Get(key node.NodeId) ([]byte, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}
