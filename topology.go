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
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"
)

// Transport names used in topology files
const (
	TransportTcp  = "tcp"
	TransportQuic = "quic"
)

// TopologyConfig represents the set of peers a node connects to on startup
type TopologyConfig struct {
	Peers []TopologyConfigPeer `json:"peers"`
}

type TopologyConfigPeer struct {
	Address   string `json:"address"`
	Port      uint   `json:"port"`
	Transport string `json:"transport"`
}

func (p TopologyConfigPeer) network() string {
	if p.Transport == "" {
		return TransportTcp
	}
	return p.Transport
}

func (p TopologyConfigPeer) address() string {
	if p.Port == 0 {
		return p.Address
	}
	return net.JoinHostPort(p.Address, strconv.FormatUint(uint64(p.Port), 10))
}

func NewTopologyConfigFromFile(path string) (*TopologyConfig, error) {
	dataFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dataFile.Close()
	return NewTopologyConfigFromReader(dataFile)
}

func NewTopologyConfigFromReader(r io.Reader) (*TopologyConfig, error) {
	t := &TopologyConfig{}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}
