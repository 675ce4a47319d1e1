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

package engine

import (
	"log/slog"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultQueueSize is the default capacity of the engine input queue
const DefaultQueueSize = 1024

// Config is used to configure the Engine
type Config struct {
	Logger             *slog.Logger
	BlockStore         BlockStore
	Transport          Transport
	QueueSize          int
	PrometheusRegistry prometheus.Registerer
	BlockReceivedFunc  BlockReceivedFunc
	WantReceivedFunc   WantReceivedFunc
	CancelReceivedFunc CancelReceivedFunc
	HaveReceivedFunc   HaveReceivedFunc
	ErrorFunc          ErrorFunc
}

// Callback function types. Callbacks run on the engine goroutine and must not
// block on engine operations
type (
	BlockReceivedFunc  func(peer.Id, *block.Block)
	WantReceivedFunc   func(peer.Id, block.Id, int32, WantType)
	CancelReceivedFunc func(peer.Id, block.Id)
	HaveReceivedFunc   func(peer.Id, block.Id)
	// ErrorFunc receives non-fatal diagnostics: *block.DecodeError,
	// *block.IntegrityError and *SendError
	ErrorFunc func(peer.Id, error)
)

// EngineOptionFunc represents a function used to modify the Engine config
type EngineOptionFunc func(*Config)

// NewConfig returns a new Engine config object with the provided options
func NewConfig(options ...EngineOptionFunc) Config {
	c := Config{
		QueueSize: DefaultQueueSize,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) EngineOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithBlockStore specifies the store used to serve and persist blocks
func WithBlockStore(store BlockStore) EngineOptionFunc {
	return func(c *Config) {
		c.BlockStore = store
	}
}

// WithTransport specifies the transport used to send messages to peers
func WithTransport(transport Transport) EngineOptionFunc {
	return func(c *Config) {
		c.Transport = transport
	}
}

// WithQueueSize specifies the capacity of the input queue
func WithQueueSize(size int) EngineOptionFunc {
	return func(c *Config) {
		if size > 0 {
			c.QueueSize = size
		}
	}
}

// WithPrometheusRegistry specifies the registry for engine metrics
func WithPrometheusRegistry(reg prometheus.Registerer) EngineOptionFunc {
	return func(c *Config) {
		c.PrometheusRegistry = reg
	}
}

// WithBlockReceivedFunc specifies the callback for verified blocks matching a local want
func WithBlockReceivedFunc(blockReceivedFunc BlockReceivedFunc) EngineOptionFunc {
	return func(c *Config) {
		c.BlockReceivedFunc = blockReceivedFunc
	}
}

// WithWantReceivedFunc specifies the callback for wants received from peers
func WithWantReceivedFunc(wantReceivedFunc WantReceivedFunc) EngineOptionFunc {
	return func(c *Config) {
		c.WantReceivedFunc = wantReceivedFunc
	}
}

// WithCancelReceivedFunc specifies the callback for cancels received from peers
func WithCancelReceivedFunc(cancelReceivedFunc CancelReceivedFunc) EngineOptionFunc {
	return func(c *Config) {
		c.CancelReceivedFunc = cancelReceivedFunc
	}
}

// WithHaveReceivedFunc specifies the callback for presence announcements from peers
func WithHaveReceivedFunc(haveReceivedFunc HaveReceivedFunc) EngineOptionFunc {
	return func(c *Config) {
		c.HaveReceivedFunc = haveReceivedFunc
	}
}

// WithErrorFunc specifies the callback for diagnostics
func WithErrorFunc(errorFunc ErrorFunc) EngineOptionFunc {
	return func(c *Config) {
		c.ErrorFunc = errorFunc
	}
}
