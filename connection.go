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

// Package blockswap implements a peer-to-peer block exchange node.
//
// A node holds connections to peers over which it runs a handshake and the
// bitswap mini-protocol. Blocks are requested and served by a single exchange
// engine, and every block received from the network is verified against the
// content identifier that names it.
//
// This package is the main entry point into this library. The other packages can
// be used outside of this one, but it's not a primary design goal.
package blockswap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/goblockswap/connection"
	"github.com/blinklabs-io/goblockswap/muxer"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
	"github.com/blinklabs-io/goblockswap/protocol/handshake"
)

var ErrHandshakeTimeout = errors.New("handshake timed out")

// The Connection type is a wrapper around a net.Conn object that handles
// communication with a single peer over that connection
type Connection struct {
	id                    connection.ConnectionId
	conn                  net.Conn
	networkMagic          uint32
	server                bool
	keyPair               *peer.KeyPair
	logger                *slog.Logger
	handshakeTimeout      time.Duration
	delayProtocolStart    bool
	remotePeer            peer.Id
	muxer                 *muxer.Muxer
	errorChan             chan error
	protoErrorChan        chan error
	handshakeFinishedChan chan any
	doneChan              chan any
	waitGroup             sync.WaitGroup
	onceClose             sync.Once
	onceStart             sync.Once
	// Mini-protocols
	handshake     *handshake.Handshake
	bitswap       *bitswap.Bitswap
	bitswapConfig *bitswap.Config
}

// NewConnection returns a new Connection object with the specified options. If a connection is provided, the
// handshake will be started. An error will be returned if the handshake fails
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		handshakeTimeout:      handshake.DefaultTimeout,
		protoErrorChan:        make(chan error, 10),
		handshakeFinishedChan: make(chan any),
		doneChan:              make(chan any),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Id returns the connection ID
func (c *Connection) Id() connection.ConnectionId {
	return c.id
}

// RemotePeer returns the peer ID announced by the remote side during the handshake
func (c *Connection) RemotePeer() peer.Id {
	return c.remotePeer
}

// Server returns whether the connection was accepted rather than dialed
func (c *Connection) Server() bool {
	return c.server
}

// Muxer returns the muxer object for the connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// ErrorChan returns the channel for asynchronous errors. It is closed when the
// connection shuts down
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// Handshake returns the handshake protocol handler
func (c *Connection) Handshake() *handshake.Handshake {
	return c.handshake
}

// Bitswap returns the bitswap protocol handler
func (c *Connection) Bitswap() *bitswap.Bitswap {
	return c.bitswap
}

// Dial will establish a connection using the specified protocol and address. These parameters are
// passed to the [net.Dial] func. The handshake will be started when a connection is established.
// An error will be returned if the connection fails, a connection was already established, or the
// handshake fails
func (c *Connection) Dial(proto string, address string) error {
	if c.conn != nil {
		return errors.New("a connection was already established")
	}
	conn, err := net.Dial(proto, address)
	if err != nil {
		return err
	}
	c.conn = conn
	return c.setupConnection()
}

// StartProtocols starts processing bitswap messages. It is only needed when the
// connection was created with WithDelayProtocolStart
func (c *Connection) StartProtocols() {
	c.onceStart.Do(func() {
		if c.bitswap != nil {
			c.bitswap.Start(c.remotePeer)
		}
	})
}

// Close will shutdown the connection
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		if c.handshake != nil {
			c.handshake.Stop()
		}
		if c.bitswap != nil {
			c.bitswap.Stop()
		}
		// Gracefully stop the muxer
		if c.muxer != nil {
			c.muxer.Stop()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
		// Wait for other goroutines to finish
		c.waitGroup.Wait()
		close(c.errorChan)
	})
	return err
}

// shutdown reports a fatal error and closes the connection
func (c *Connection) shutdown(err error) {
	c.errorChan <- err
	// Close waits on the goroutine calling us
	go c.Close()
}

// setupConnection establishes the muxer, runs the handshake, and configures
// the bitswap mini-protocol
func (c *Connection) setupConnection() error {
	if c.keyPair == nil {
		return errors.New("no key pair provided")
	}
	// Check network magic value
	if c.networkMagic == 0 {
		return fmt.Errorf("invalid network magic value provided: %d", c.networkMagic)
	}
	c.id = connection.ConnectionId{
		LocalAddr:  c.conn.LocalAddr(),
		RemoteAddr: c.conn.RemoteAddr(),
	}
	c.muxer = muxer.New(c.conn)
	// Start Goroutine to pass along errors from the muxer
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err, ok := <-c.muxer.ErrorChan():
			// Break out of goroutine if muxer's error channel is closed
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Return a bare io.EOF error if error is EOF/ErrUnexpectedEOF
				err = io.EOF
			} else {
				// Wrap error message to denote it comes from the muxer
				err = fmt.Errorf("muxer error: %w", err)
			}
			// Close connection on muxer errors
			c.shutdown(err)
		}
	}()
	protoOptions := protocol.ProtocolOptions{
		ConnectionId: c.id,
		Muxer:        c.muxer,
		Logger:       c.logger,
		ErrorChan:    c.protoErrorChan,
	}
	// The bitswap protocol is registered before the handshake so that messages
	// sent right after the remote side finishes are not lost
	c.bitswap = bitswap.New(protoOptions, c.bitswapConfig)
	// Perform handshake
	handshakeConfig := handshake.NewConfig(
		handshake.WithNetworkMagic(c.networkMagic),
		handshake.WithKeyPair(c.keyPair),
		handshake.WithFinishedFunc(func(_ handshake.CallbackContext, remotePeer peer.Id) error {
			c.remotePeer = remotePeer
			close(c.handshakeFinishedChan)
			return nil
		}),
	)
	c.handshake = handshake.New(protoOptions, &handshakeConfig)
	c.handshake.Start()
	c.muxer.Start()
	// Wait for handshake completion or error
	select {
	case <-c.doneChan:
		// Return an error if we're shutting down
		return io.EOF
	case err := <-c.protoErrorChan:
		c.Close()
		return err
	case <-time.After(c.handshakeTimeout):
		c.Close()
		return fmt.Errorf("%w after %s", ErrHandshakeTimeout, c.handshakeTimeout)
	case <-c.handshakeFinishedChan:
		// This is purposely empty, but we need this case to break out when this channel is closed
	}
	c.logger.Debug("handshake complete",
		"component", "network",
		"connection_id", c.id.String(),
		"peer", c.remotePeer.String(),
		"server", c.server,
	)
	// Start Goroutine to pass along errors from the mini-protocols
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			// Return if we're shutting down
			return
		case err := <-c.protoErrorChan:
			// Close connection on mini-protocol errors
			c.shutdown(fmt.Errorf("protocol error: %w", err))
		}
	}()
	if !c.delayProtocolStart {
		c.StartProtocols()
	}
	return nil
}
