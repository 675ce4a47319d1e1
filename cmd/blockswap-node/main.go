// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/goblockswap"
	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cmd/common"
	"github.com/blinklabs-io/goblockswap/engine"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type nodeFlags struct {
	*common.GlobalFlags
	listen        string
	quicListen    string
	peers         common.PeerFlag
	topology      string
	seed          string
	metricsListen string
}

func main() {
	// Parse commandline
	f := nodeFlags{
		GlobalFlags: common.NewGlobalFlags(),
	}
	f.Flagset.StringVar(&f.listen, "listen", "", "TCP address to accept peers on in address:port format")
	f.Flagset.StringVar(&f.quicListen, "quic-listen", "", "UDP address to accept QUIC peers on in address:port format")
	f.Flagset.Var(&f.peers, "peer", "peer to connect to, optionally prefixed with tcp:// or quic:// (may be repeated)")
	f.Flagset.StringVar(&f.topology, "topology", "", "path to JSON topology file listing peers to connect to")
	f.Flagset.StringVar(&f.seed, "seed", "", "hex-encoded 32-byte seed for the node key (random if not specified)")
	f.Flagset.StringVar(&f.metricsListen, "metrics-listen", "", "address to serve Prometheus metrics on")
	f.Parse()
	logger := f.Logger()
	slog.SetDefault(logger)

	var keyPair *peer.KeyPair
	if f.seed != "" {
		seed, err := hex.DecodeString(f.seed)
		if err != nil {
			fmt.Printf("ERROR: failed to decode seed: %s\n", err)
			os.Exit(1)
		}
		keyPair, err = peer.KeyPairFromSeed(seed)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	out := os.Stdout
	node, err := blockswap.NewNode(
		blockswap.NodeConfig{
			// #nosec G115 -- network magic is parsed from a flag and fits in 32 bits
			NetworkMagic:       uint32(f.NetworkMagic),
			KeyPair:            keyPair,
			Logger:             logger,
			PrometheusRegistry: registry,
			EngineOptions:      eventOptions(out),
		},
	)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(out, "peer ID: %s\n", node.PeerId().String())

	if f.metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              f.metricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	if f.listen != "" {
		addr, err := node.Listen("tcp", f.listen)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(out, "listening on tcp://%s\n", addr.String())
	}
	if f.quicListen != "" {
		addr, err := node.ListenQUIC(f.quicListen)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(out, "listening on quic://%s\n", addr.String())
	}

	connManager := node.ConnectionManager()
	if f.topology != "" {
		topology, err := blockswap.NewTopologyConfigFromFile(f.topology)
		if err != nil {
			fmt.Printf("ERROR: failed to load topology: %s\n", err)
			os.Exit(1)
		}
		connManager.AddHostsFromTopology(topology)
	}
	for _, value := range f.peers {
		// Values were validated when the flag was parsed
		network, address, _ := common.ParsePeerAddress(value)
		connManager.AddHost(network, address, blockswap.ConnectionManagerTagHostCommandLine)
	}
	if err := node.DialHosts(); err != nil {
		logger.Warn("failed to connect to some peers", "error", err)
	}

	// Run commands from stdin until quit, EOF, or a signal
	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		runCommands(node, os.Stdin, out)
	}()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-doneChan:
	case <-sigChan:
	}
	if err := node.Stop(); err != nil {
		logger.Error("failed to stop node", "error", err)
	}
}

// eventOptions prints exchange events as they happen
func eventOptions(out io.Writer) []engine.EngineOptionFunc {
	return []engine.EngineOptionFunc{
		engine.WithBlockReceivedFunc(func(p peer.Id, blk *block.Block) {
			fmt.Fprintf(out, "block %s (%d bytes) from %s\n", blk.Id().String(), blk.Size(), p.ShortString())
		}),
		engine.WithWantReceivedFunc(func(p peer.Id, id block.Id, priority int32, wantType engine.WantType) {
			fmt.Fprintf(out, "want %s (%s, priority %d) from %s\n", id.String(), wantType.String(), priority, p.ShortString())
		}),
		engine.WithHaveReceivedFunc(func(p peer.Id, id block.Id) {
			fmt.Fprintf(out, "have %s from %s\n", id.String(), p.ShortString())
		}),
		engine.WithCancelReceivedFunc(func(p peer.Id, id block.Id) {
			fmt.Fprintf(out, "cancel %s from %s\n", id.String(), p.ShortString())
		}),
		engine.WithErrorFunc(func(p peer.Id, err error) {
			fmt.Fprintf(out, "error from %s: %s\n", p.ShortString(), err)
		}),
	}
}
