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
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

const (
	// ntpFailureThreshold is how many consecutive request timeouts it
	// takes before we suspect our own clock rather than the network,
	// mirroring the teacher's checkClockDrift trigger.
	ntpFailureThreshold = 32
	// ntpWarningCooldown keeps repeated drift warnings from flooding
	// the log once a bad clock is already known about.
	ntpWarningCooldown = 10 * time.Minute
	// driftThreshold is how far local and NTP time may disagree before
	// it's worth a log line.
	driftThreshold = 10 * time.Second
	defaultNTPPool = "pool.ntp.org"
)

// clockMonitor counts consecutive request timeouts and, once they pile
// up past ntpFailureThreshold, queries an NTP pool to see whether the
// local clock (rather than the peers) is the problem. A run of timeouts
// is cheap to produce under ordinary packet loss, so the check itself
// is rate-limited by ntpWarningCooldown.
type clockMonitor struct {
	pool string
	log  *logrus.Entry

	mu             sync.Mutex
	consecutiveTMO int
	lastCheck      time.Time
}

func newClockMonitor(pool string, log *logrus.Entry) *clockMonitor {
	return &clockMonitor{pool: pool, log: log}
}

func (c *clockMonitor) recordSuccess() {
	c.mu.Lock()
	c.consecutiveTMO = 0
	c.mu.Unlock()
}

func (c *clockMonitor) recordTimeout() {
	c.mu.Lock()
	c.consecutiveTMO++
	fire := c.consecutiveTMO >= ntpFailureThreshold
	if fire {
		c.consecutiveTMO = 0
	}
	c.mu.Unlock()
	if fire {
		go c.check()
	}
}

func (c *clockMonitor) check() {
	c.mu.Lock()
	if time.Since(c.lastCheck) < ntpWarningCooldown {
		c.mu.Unlock()
		return
	}
	c.lastCheck = time.Now()
	c.mu.Unlock()

	remote, err := ntp.Time(c.pool)
	if err != nil {
		c.log.WithError(err).Debug("ntp drift check failed")
		return
	}
	drift := time.Until(remote)
	if drift < 0 {
		drift = -drift
	}
	if drift > driftThreshold {
		c.log.WithField("drift", drift).Warn("local clock drift exceeds threshold, excess request timeouts may be a symptom")
	}
}
