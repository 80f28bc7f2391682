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

// Package config loads the node's TOML configuration file, the same
// format the teacher's full node config uses.
package config

import (
	"io/ioutil"
	"time"

	"github.com/naoina/toml"
)

// Config is the node's on-disk configuration. Durations are expressed
// in plain seconds on disk (TOML has no native duration type) and
// converted by accessor methods such as RequestTimeout.
type Config struct {
	ListenAddr        string   `toml:"listen_addr"`
	Bootnodes         []string `toml:"bootnodes"`
	BucketSize        int      `toml:"bucket_size"`
	Alpha             int      `toml:"alpha"`
	RequestTimeoutSec int      `toml:"request_timeout_sec"`
	ValueStoreSize    int      `toml:"value_store_size"`
	NTPPool           string   `toml:"ntp_pool"`
}

// RequestTimeout is RequestTimeoutSec as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Default returns the configuration a fresh node starts with absent a
// config file.
func Default() Config {
	return Config{
		ListenAddr:        ":30304",
		BucketSize:        16,
		Alpha:             3,
		RequestTimeoutSec: 5,
		ValueStoreSize:    4096,
		NTPPool:           "pool.ntp.org",
	}
}

// Load reads and parses a TOML config file at path, starting from
// Default() so an incomplete file still yields sane values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
