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

package peer_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	kp1, err := peer.KeyPairFromSeed(seed)
	require.NoError(t, err)
	kp2, err := peer.KeyPairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, kp1.Id(), kp2.Id())
	assert.False(t, kp1.Id().IsZero())

	_, err = peer.KeyPairFromSeed([]byte{0x01})
	assert.Error(t, err)
}

func TestIdStringRoundTrip(t *testing.T) {
	kp, err := peer.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.Id()
	parsed, err := peer.ParseId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	// sha2-256 multihashes start with 0x12 0x20, which is "Qm" in base58
	assert.Equal(t, "Qm", id.String()[:2])
	assert.Len(t, id.ShortString(), 12)
}

func TestParseIdInvalid(t *testing.T) {
	tests := []string{
		"",
		"0OIl",
		// "hello world", not a multihash
		"StV1DL6CwTryKyV",
	}
	for _, s := range tests {
		_, err := peer.ParseId(s)
		assert.ErrorIs(t, err, peer.ErrInvalidPeerId, "input %q", s)
	}
}

func TestValidatePublicKey(t *testing.T) {
	kp, err := peer.GenerateKeyPair()
	require.NoError(t, err)
	assert.NoError(t, peer.ValidatePublicKey(kp.PublicKey))

	tests := []struct {
		name string
		key  []byte
	}{
		{name: "short key", key: []byte{0x01, 0x02}},
		// y = 2 has no matching x coordinate on the curve
		{name: "not on curve", key: append([]byte{0x02}, make([]byte, 31)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := peer.ValidatePublicKey(tt.key)
			assert.ErrorIs(t, err, peer.ErrInvalidPublicKey)
			_, err = peer.IdFromPublicKey(tt.key)
			assert.ErrorIs(t, err, peer.ErrInvalidPublicKey)
		})
	}
}
