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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "blockswap"
	metricsSubsystem = "engine"
)

// Metrics holds the engine prometheus collectors
type Metrics struct {
	BlocksReceived    prometheus.Counter
	DuplicateBlocks   prometheus.Counter
	IntegrityFailures prometheus.Counter
	BlocksSent        prometheus.Counter
	WantsSent         prometheus.Counter
	CancelsSent       prometheus.Counter
	HavesSent         prometheus.Counter
	SendFailures      prometheus.Counter
	DecodeErrors      prometheus.Counter
	WantListSize      prometheus.Gauge
	ConnectedPeers    prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them. A nil registerer
// gets a private registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		BlocksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "blocks_received_total",
			Help:      "Verified blocks received for a local want",
		}),
		DuplicateBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "duplicate_blocks_total",
			Help:      "Verified blocks received that were not wanted",
		}),
		IntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "integrity_failures_total",
			Help:      "Blocks received whose payload did not match the identifier",
		}),
		BlocksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "blocks_sent_total",
			Help:      "Blocks sent to peers",
		}),
		WantsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "wants_sent_total",
			Help:      "Want messages sent to peers",
		}),
		CancelsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cancels_sent_total",
			Help:      "Cancel messages sent to peers",
		}),
		HavesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "haves_sent_total",
			Help:      "Have messages sent to peers",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "send_failures_total",
			Help:      "Outbound messages the transport could not deliver",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped because they could not be decoded",
		}),
		WantListSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "wantlist_size",
			Help:      "Number of entries in the local WantList",
		}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connected_peers",
			Help:      "Number of connected peers",
		}),
	}
}
