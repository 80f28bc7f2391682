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

// Command dhtnode runs a single DHT node: it binds a UDP socket, serves
// ping/find_node/find_value/store requests out of its routing table and
// value store, and exits once the server's receive loop stops. This mirrors, at far smaller scale, the way
// the teacher's cmd/utils wires flags into a running p2p stack.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/MOACChain/dht/internal/config"
	"github.com/MOACChain/dht/message"
	"github.com/MOACChain/dht/node"
	"github.com/MOACChain/dht/p2p/discover"
	"github.com/MOACChain/dht/store"
)

var (
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file path",
	}
	ListenAddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "UDP listen address (host:port)",
	}
	BootnodesFlag = cli.StringFlag{
		Name:  "bootnodes",
		Usage: "comma-separated list of addr@hexid bootstrap peers",
	}
	NodeKeyFlag = cli.StringFlag{
		Name:  "nodeid",
		Usage: "hex-encoded 20-byte node id; a random one is used if omitted",
	}
	VerbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: int(logrus.InfoLevel),
		Usage: "log verbosity: 0=panic .. 6=trace",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "dhtnode"
	app.Usage = "run a Kademlia DHT node"
	app.Flags = []cli.Flag{
		ConfigFileFlag,
		ListenAddrFlag,
		BootnodesFlag,
		NodeKeyFlag,
		VerbosityFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logrus.SetLevel(logrus.Level(ctx.Int(VerbosityFlag.Name)))
	log := logrus.WithField("component", "dhtnode")

	cfg := config.Default()
	if path := ctx.String(ConfigFileFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if addr := ctx.String(ListenAddrFlag.Name); addr != "" {
		cfg.ListenAddr = addr
	}
	if bn := ctx.String(BootnodesFlag.Name); bn != "" {
		cfg.Bootnodes = splitBootnodes(bn)
	}

	self, err := selfID(ctx.String(NodeKeyFlag.Name))
	if err != nil {
		return err
	}
	log.WithField("id", self.String()).Info("starting node")

	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.ListenAddr, err)
	}

	metrics := discover.NewMetrics(nil)
	srv := discover.NewServer(conn, log, metrics)
	defer srv.Close()

	table := discover.NewTable(self)
	values, err := store.New(cfg.ValueStoreSize)
	if err != nil {
		return fmt.Errorf("building value store: %w", err)
	}

	for _, addr := range cfg.Bootnodes {
		n, err := parseBootnode(addr)
		if err != nil {
			log.WithError(err).WithField("bootnode", addr).Warn("skipping malformed bootnode")
			continue
		}
		table.Add(n)
	}

	log.WithField("addr", conn.LocalAddr().String()).Info("listening")
	serveIncoming(log, srv, table, values)
	return nil
}

// serveIncoming answers unsolicited requests out of the local table and
// value store. It runs until the server's Incoming channel is closed by
// Server.Close.
func serveIncoming(log *logrus.Entry, srv *discover.Server, table *discover.Table, values *store.ValueStore) {
	for in := range srv.Incoming() {
		handleIncoming(log, srv, table, values, in)
	}
}

func handleIncoming(log *logrus.Entry, srv *discover.Server, table *discover.Table, values *store.ValueStore, in discover.Incoming) {
	switch m := in.Msg.(type) {
	case *message.Ping:
		_ = srv.SendResponse(in.Addr, &message.Pong{CookieField: m.CookieField})
	case *message.FindNode:
		closest := table.Closest(m.Target, 16)
		_ = srv.SendResponse(in.Addr, &message.FoundNode{
			CookieField: m.CookieField,
			Nodes:       message.ToWireNodes(closest),
		})
	case *message.FindValue:
		if v, ok := values.Get(m.Key); ok {
			_ = srv.SendResponse(in.Addr, &message.FoundValue{CookieField: m.CookieField, Found: true, Value: v})
			return
		}
		closest := table.Closest(m.Key, 16)
		_ = srv.SendResponse(in.Addr, &message.FoundValue{
			CookieField: m.CookieField,
			Found:       false,
			Nodes:       message.ToWireNodes(closest),
		})
	case *message.Store:
		values.Put(m.Key, m.Value)
		_ = srv.SendResponse(in.Addr, &message.Pong{CookieField: m.CookieField})
	default:
		log.WithField("kind", in.Msg.Kind()).Debug("ignoring unexpected incoming message")
	}
}

func selfID(hexID string) (node.NodeId, error) {
	if hexID == "" {
		return randomID()
	}
	return node.ParseID(hexID)
}
