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

package blockswap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/blockstore"
	"github.com/blinklabs-io/goblockswap/engine"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
	"github.com/blinklabs-io/goblockswap/protocol/handshake"
	"github.com/blinklabs-io/goblockswap/transport/quic"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ engine.Transport  = (*ConnectionManager)(nil)
	_ engine.BlockStore = (*blockstore.MemoryStore)(nil)
)

// NodeConfig provides the configuration for a Node
type NodeConfig struct {
	NetworkMagic       uint32
	KeyPair            *peer.KeyPair
	Logger             *slog.Logger
	BlockStore         engine.BlockStore
	HandshakeTimeout   time.Duration
	PrometheusRegistry prometheus.Registerer
	// EngineOptions are applied after the node's own engine options
	EngineOptions []engine.EngineOptionFunc
}

// Node is a block exchange node. It owns the exchange engine and the
// connections to its peers
type Node struct {
	config         NodeConfig
	engine         *engine.Engine
	connManager    *ConnectionManager
	listeners      []net.Listener
	listenersMutex sync.Mutex
	waitGroup      sync.WaitGroup
	engineCancel   context.CancelFunc
	engineDoneChan chan struct{}
	doneChan       chan struct{}
	onceStop       sync.Once
}

// NewNode creates a node and starts its exchange engine
func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.NetworkMagic == 0 {
		cfg.NetworkMagic = NetworkMainnet.NetworkMagic
	}
	if cfg.KeyPair == nil {
		keyPair, err := peer.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate key pair: %w", err)
		}
		cfg.KeyPair = keyPair
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BlockStore == nil {
		cfg.BlockStore = blockstore.NewMemoryStore()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = handshake.DefaultTimeout
	}
	n := &Node{
		config:         cfg,
		engineDoneChan: make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
	n.connManager = NewConnectionManager(
		ConnectionManagerConfig{
			Logger:            cfg.Logger,
			PeerConnectedFunc: n.peerConnected,
			ConnClosedFunc:    n.connClosed,
		},
	)
	engineOptions := []engine.EngineOptionFunc{
		engine.WithLogger(cfg.Logger),
		engine.WithBlockStore(cfg.BlockStore),
		engine.WithTransport(n.connManager),
		engine.WithPrometheusRegistry(cfg.PrometheusRegistry),
	}
	engineOptions = append(engineOptions, cfg.EngineOptions...)
	e, err := engine.New(engine.NewConfig(engineOptions...))
	if err != nil {
		return nil, err
	}
	n.engine = e
	ctx, cancel := context.WithCancel(context.Background())
	n.engineCancel = cancel
	go func() {
		defer close(n.engineDoneChan)
		if err := n.engine.Run(ctx); err != nil {
			cfg.Logger.Error("exchange engine failed",
				"component", "engine",
				"error", err,
			)
		}
	}()
	return n, nil
}

// PeerId returns the local peer ID
func (n *Node) PeerId() peer.Id {
	return n.config.KeyPair.Id()
}

// Engine returns the exchange engine
func (n *Node) Engine() *engine.Engine {
	return n.engine
}

// ConnectionManager returns the connection manager
func (n *Node) ConnectionManager() *ConnectionManager {
	return n.connManager
}

// BlockStore returns the block store
func (n *Node) BlockStore() engine.BlockStore {
	return n.config.BlockStore
}

// Want asks connected peers for a block
func (n *Node) Want(id block.Id, priority int32) error {
	return n.engine.Want(id, priority)
}

// WantPresence asks connected peers whether they hold a block
func (n *Node) WantPresence(id block.Id, priority int32) error {
	return n.engine.WantPresence(id, priority)
}

// Cancel stops asking for a block
func (n *Node) Cancel(id block.Id) error {
	return n.engine.Cancel(id)
}

// HaveBlock makes a block available to peers
func (n *Node) HaveBlock(blk *block.Block) error {
	return n.engine.HaveBlock(blk)
}

// Add creates a raw block from data and makes it available to peers
func (n *Node) Add(data []byte) (*block.Block, error) {
	blk := block.NewRawBlock(data)
	if err := n.engine.HaveBlock(blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// Listen accepts block exchange connections on a stream listener, such as TCP
func (n *Node) Listen(network string, address string) (net.Addr, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return n.serve(listener)
}

// ListenQUIC accepts block exchange connections over QUIC
func (n *Node) ListenQUIC(address string) (net.Addr, error) {
	listener, err := quic.Listen(address)
	if err != nil {
		return nil, err
	}
	return n.serve(listener)
}

func (n *Node) serve(listener net.Listener) (net.Addr, error) {
	n.listenersMutex.Lock()
	defer n.listenersMutex.Unlock()
	select {
	case <-n.doneChan:
		listener.Close()
		return nil, net.ErrClosed
	default:
	}
	n.listeners = append(n.listeners, listener)
	n.config.Logger.Info("listening for connections",
		"component", "network",
		"address", listener.Addr().String(),
	)
	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					n.config.Logger.Error("accept failed",
						"component", "network",
						"address", listener.Addr().String(),
						"error", err,
					)
				}
				return
			}
			n.waitGroup.Add(1)
			go func() {
				defer n.waitGroup.Done()
				if _, err := n.setupConnection(conn, true); err != nil {
					n.config.Logger.Warn("inbound connection failed",
						"component", "network",
						"remote_addr", conn.RemoteAddr().String(),
						"error", err,
					)
				}
			}()
		}
	}()
	return listener.Addr(), nil
}

// Dial connects to a peer over a stream transport, such as TCP, and returns its peer ID
func (n *Node) Dial(network string, address string) (peer.Id, error) {
	conn, err := net.DialTimeout(network, address, n.config.HandshakeTimeout)
	if err != nil {
		return peer.Id{}, err
	}
	return n.setupConnection(conn, false)
}

// DialQUIC connects to a peer over QUIC and returns its peer ID
func (n *Node) DialQUIC(address string) (peer.Id, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.HandshakeTimeout)
	defer cancel()
	conn, err := quic.Dial(ctx, address)
	if err != nil {
		return peer.Id{}, err
	}
	return n.setupConnection(conn, false)
}

// DialHosts connects to every host known to the connection manager
func (n *Node) DialHosts() error {
	var errs []error
	for _, host := range n.connManager.Hosts() {
		var err error
		switch host.Network {
		case TransportQuic:
			_, err = n.DialQUIC(host.Address)
		default:
			_, err = n.Dial(host.Network, host.Address)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", host.Network, host.Address, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Node) setupConnection(conn net.Conn, server bool) (peer.Id, error) {
	c, err := NewConnection(
		WithConnection(conn),
		WithNetworkMagic(n.config.NetworkMagic),
		WithKeyPair(n.config.KeyPair),
		WithLogger(n.config.Logger),
		WithServer(server),
		WithHandshakeTimeout(n.config.HandshakeTimeout),
		WithDelayProtocolStart(true),
		WithBitswapConfig(n.bitswapConfig()),
	)
	if err != nil {
		conn.Close()
		return peer.Id{}, err
	}
	role := ConnectionManagerTagRoleInitiator
	if server {
		role = ConnectionManagerTagRoleResponder
	}
	n.connManager.AddConnection(c, role)
	return c.RemotePeer(), nil
}

func (n *Node) bitswapConfig() bitswap.Config {
	return bitswap.NewConfig(
		bitswap.WithWantFunc(func(ctx bitswap.CallbackContext, msg *bitswap.MsgWant) error {
			return n.engine.HandleMessage(ctx.Peer, msg)
		}),
		bitswap.WithBlockFunc(func(ctx bitswap.CallbackContext, msg *bitswap.MsgBlock) error {
			return n.engine.HandleMessage(ctx.Peer, msg)
		}),
		bitswap.WithCancelFunc(func(ctx bitswap.CallbackContext, msg *bitswap.MsgCancel) error {
			return n.engine.HandleMessage(ctx.Peer, msg)
		}),
		bitswap.WithHaveFunc(func(ctx bitswap.CallbackContext, msg *bitswap.MsgHave) error {
			return n.engine.HandleMessage(ctx.Peer, msg)
		}),
		bitswap.WithDecodeErrorFunc(func(ctx bitswap.CallbackContext, err error) {
			_ = n.engine.HandleDecodeError(ctx.Peer, err)
		}),
		bitswap.WithSendErrorFunc(func(ctx bitswap.CallbackContext, msg protocol.Message, err error) {
			_ = n.engine.SendFailed(ctx.Peer, msg, err)
		}),
	)
}

func (n *Node) peerConnected(peerId peer.Id) {
	n.config.Logger.Info("peer connected",
		"component", "network",
		"peer", peerId.String(),
	)
	_ = n.engine.PeerConnected(peerId)
}

func (n *Node) connClosed(peerId peer.Id, err error) {
	n.config.Logger.Info("peer disconnected",
		"component", "network",
		"peer", peerId.String(),
		"error", err,
	)
	_ = n.engine.PeerDisconnected(peerId)
}

// Stop closes the listeners and connections and stops the exchange engine
func (n *Node) Stop() error {
	var err error
	n.onceStop.Do(func() {
		n.listenersMutex.Lock()
		close(n.doneChan)
		var errs []error
		for _, listener := range n.listeners {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		n.listenersMutex.Unlock()
		// Wait for accept loops and pending inbound handshakes
		n.waitGroup.Wait()
		n.connManager.Close()
		n.engineCancel()
		<-n.engineDoneChan
		err = errors.Join(errs...)
	})
	return err
}
