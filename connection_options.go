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
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
)

// ConnectionOptionFunc is a type that represents functions that modify the Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithNetwork specifies the network
func WithNetwork(network Network) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = network.NetworkMagic
	}
}

// WithNetworkMagic specifies the network magic value
func WithNetworkMagic(networkMagic uint32) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = networkMagic
	}
}

// WithKeyPair specifies the local node key pair announced in the handshake
func WithKeyPair(keyPair *peer.KeyPair) ConnectionOptionFunc {
	return func(c *Connection) {
		c.keyPair = keyPair
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ConnectionOptionFunc {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
func WithErrorChan(errorChan chan error) ConnectionOptionFunc {
	return func(c *Connection) {
		c.errorChan = errorChan
	}
}

// WithServer specifies whether the connection was accepted rather than dialed
func WithServer(server bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.server = server
	}
}

// WithHandshakeTimeout specifies how long to wait for the handshake to complete
func WithHandshakeTimeout(timeout time.Duration) ConnectionOptionFunc {
	return func(c *Connection) {
		c.handshakeTimeout = timeout
	}
}

// WithDelayProtocolStart specifies whether to delay the start of the bitswap protocol until
// StartProtocols is called. This is useful when the peer must be registered somewhere before
// its messages are processed
func WithDelayProtocolStart(delayProtocolStart bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.delayProtocolStart = delayProtocolStart
	}
}

// WithBitswapConfig specifies Bitswap protocol config
func WithBitswapConfig(cfg bitswap.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.bitswapConfig = &cfg
	}
}
