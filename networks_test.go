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

package blockswap_test

import (
	"testing"

	"github.com/blinklabs-io/goblockswap"
)

func TestNetworkLookup(t *testing.T) {
	testDefs := []struct {
		name         string
		networkMagic uint32
		expected     blockswap.Network
	}{
		{name: "mainnet", networkMagic: 0x626c6b73, expected: blockswap.NetworkMainnet},
		{name: "testnet", networkMagic: 0x74657374, expected: blockswap.NetworkTestnet},
		{name: "devnet", networkMagic: 42, expected: blockswap.NetworkDevnet},
		{name: "bogus", networkMagic: 12345, expected: blockswap.NetworkInvalid},
	}
	for _, testDef := range testDefs {
		if network := blockswap.NetworkByName(testDef.name); network != testDef.expected {
			t.Fatalf("did not get expected network for name %q: got %v", testDef.name, network)
		}
		if network := blockswap.NetworkByNetworkMagic(testDef.networkMagic); network != testDef.expected {
			t.Fatalf("did not get expected network for magic %d: got %v", testDef.networkMagic, network)
		}
	}
	if blockswap.NetworkDevnet.String() != "devnet" {
		t.Fatalf("unexpected network string: %s", blockswap.NetworkDevnet.String())
	}
}
