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

import "github.com/rcrowley/go-metrics"

// Metrics are the multiplexer's request/response counters, registered
// into a go-metrics Registry the way the teacher's p2p layer exposes
// its own counters for the metrics dashboard.
type Metrics struct {
	Requests    metrics.Counter
	Responses   metrics.Counter
	Timeouts    metrics.Counter
	Unsolicited metrics.Counter
	Probes      metrics.Counter
}

// NewMetrics builds a fresh Metrics set and, if registry is non-nil,
// registers each counter under a discover/ prefix.
func NewMetrics(registry metrics.Registry) *Metrics {
	m := &Metrics{
		Requests:    metrics.NewCounter(),
		Responses:   metrics.NewCounter(),
		Timeouts:    metrics.NewCounter(),
		Unsolicited: metrics.NewCounter(),
		Probes:      metrics.NewCounter(),
	}
	if registry != nil {
		registry.Register("discover/requests", m.Requests)
		registry.Register("discover/responses", m.Responses)
		registry.Register("discover/timeouts", m.Timeouts)
		registry.Register("discover/unsolicited", m.Unsolicited)
		registry.Register("discover/probes", m.Probes)
	}
	return m
}
