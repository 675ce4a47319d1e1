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

package common

import (
	"fmt"
	"strings"

	"github.com/blinklabs-io/goblockswap"
)

// PeerFlag collects repeated -peer flags. Each value is an address in
// host:port form, optionally prefixed with tcp:// or quic://
type PeerFlag []string

func (p *PeerFlag) String() string {
	return strings.Join(*p, ",")
}

func (p *PeerFlag) Set(value string) error {
	if _, _, err := ParsePeerAddress(value); err != nil {
		return err
	}
	*p = append(*p, value)
	return nil
}

// ParsePeerAddress splits a peer address into its transport and host:port
func ParsePeerAddress(value string) (string, string, error) {
	network := blockswap.TransportTcp
	address := value
	if before, after, ok := strings.Cut(value, "://"); ok {
		network = before
		address = after
	}
	switch network {
	case blockswap.TransportTcp, blockswap.TransportQuic:
	default:
		return "", "", fmt.Errorf("unsupported transport %q in peer address %q", network, value)
	}
	if address == "" {
		return "", "", fmt.Errorf("missing address in peer address %q", value)
	}
	return network, address, nil
}
