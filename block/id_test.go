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

package block_test

import (
	"errors"
	"io"
	"testing"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	payload := []byte("hello world")
	for _, hashFunc := range []block.HashFunc{
		block.HashSha2_256,
		block.HashSha3_256,
		block.HashBlake2b256,
	} {
		t.Run(hashFunc.String(), func(t *testing.T) {
			id1, err := block.Compute(payload, hashFunc, block.CodecRaw)
			require.NoError(t, err)
			id2, err := block.Compute(payload, hashFunc, block.CodecRaw)
			require.NoError(t, err)
			assert.Equal(t, id1, id2)
			assert.True(t, id1.Equal(id2))
			assert.Equal(t, hashFunc, id1.HashFunc())
			assert.Equal(t, block.CodecRaw, id1.Codec())
			assert.Len(t, id1.Digest(), 32)
			assert.True(t, block.Verify(payload, id1))
		})
	}
}

func TestComputeDistinguishesTags(t *testing.T) {
	payload := []byte("payload")
	raw, err := block.Compute(payload, block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	dagCbor, err := block.Compute(payload, block.HashSha2_256, block.CodecDagCbor)
	require.NoError(t, err)
	sha3, err := block.Compute(payload, block.HashSha3_256, block.CodecRaw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, dagCbor)
	assert.NotEqual(t, raw, sha3)
	assert.Equal(t, raw.Digest(), dagCbor.Digest())
}

func TestComputeUnsupportedHash(t *testing.T) {
	_, err := block.Compute([]byte("x"), block.HashFunc(0x13), block.CodecRaw)
	assert.ErrorIs(t, err, block.ErrUnsupportedHash)
}

func TestIdBytesRoundTrip(t *testing.T) {
	id, err := block.Compute([]byte("round trip"), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	data := id.Bytes()
	// version 1, raw codec, sha2-256, 32 byte digest
	assert.Equal(t, []byte{0x01, 0x55, 0x12, 0x20}, data[:4])
	decoded, err := block.DecodeId(data)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)

	parsed, err := block.ParseId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestDecodeIdErrors(t *testing.T) {
	id, err := block.Compute([]byte("offsets"), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	full := id.Bytes()
	tests := []struct {
		name      string
		data      []byte
		offset    int
		expectErr error
	}{
		{name: "empty", data: []byte{}, offset: 0, expectErr: io.ErrUnexpectedEOF},
		{name: "bad version", data: []byte{0x02, 0x55}, offset: 0, expectErr: block.ErrUnsupportedVersion},
		{name: "missing codec", data: []byte{0x01}, offset: 1, expectErr: io.ErrUnexpectedEOF},
		{name: "unsupported hash", data: []byte{0x01, 0x55, 0x13, 0x40}, offset: 2, expectErr: block.ErrUnsupportedHash},
		{name: "bad digest length", data: []byte{0x01, 0x55, 0x12, 0x10}, offset: 3, expectErr: block.ErrDigestLength},
		{name: "truncated digest", data: full[:len(full)-5], offset: len(full) - 5, expectErr: io.ErrUnexpectedEOF},
		{name: "trailing bytes", data: append(append([]byte{}, full...), 0x00), offset: len(full), expectErr: block.ErrTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := block.DecodeId(tt.data)
			require.Error(t, err)
			var decodeErr *block.DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T", err)
			assert.Equal(t, tt.offset, decodeErr.Offset)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestParseIdInvalid(t *testing.T) {
	_, err := block.ParseId("not-a-cid")
	assert.Error(t, err)
}

func TestIdLess(t *testing.T) {
	a, err := block.Compute([]byte("a"), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	b, err := block.Compute([]byte("b"), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	assert.NotEqual(t, a.Less(b), b.Less(a))
	assert.False(t, a.Less(a))
}

func TestIdCbor(t *testing.T) {
	id, err := block.Compute([]byte("cbor"), block.HashBlake2b256, block.CodecDagCbor)
	require.NoError(t, err)
	data, err := cbor.Encode(id)
	require.NoError(t, err)
	var decoded block.Id
	_, err = cbor.Decode(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestIdAsMapKey(t *testing.T) {
	id1, err := block.Compute([]byte("key"), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	id2, err := block.DecodeId(id1.Bytes())
	require.NoError(t, err)
	m := map[block.Id]int{id1: 1}
	m[id2]++
	assert.Len(t, m, 1)
	assert.Equal(t, 2, m[id1])
}
