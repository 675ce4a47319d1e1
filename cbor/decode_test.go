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

package cbor_test

import (
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTestDefinition struct {
	CborHex   string
	Object    any
	BytesRead int
}

var decodeTests = []decodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []any{uint64(1), uint64(2), uint64(3)},
	},
	// Multiple CBOR objects
	{
		CborHex:   "81018102",
		Object:    []any{uint64(1)},
		BytesRead: 2,
	},
}

func TestDecode(t *testing.T) {
	for _, test := range decodeTests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		var dest any
		bytesRead, err := cbor.Decode(cborData, &dest)
		if err != nil {
			t.Fatalf("failed to decode CBOR: %s", err)
		}
		if test.BytesRead > 0 {
			if bytesRead != test.BytesRead {
				t.Fatalf("expected to read %d bytes, read %d instead", test.BytesRead, bytesRead)
			}
		}
		if !reflect.DeepEqual(dest, test.Object) {
			t.Fatalf(
				"CBOR did not decode to expected object\n  got: %#v\n  wanted: %#v",
				dest,
				test.Object,
			)
		}
	}
}

func TestEncode(t *testing.T) {
	cborData, err := cbor.Encode([]any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "83010203", hex.EncodeToString(cborData))
}

func TestDecodeIdFromList(t *testing.T) {
	tests := []struct {
		name      string
		cborHex   string
		expected  int
		expectErr bool
	}{
		{name: "small id", cborHex: "820102", expected: 1},
		{name: "one byte id", cborHex: "82181e02", expected: 30},
		{name: "empty list", cborHex: "80", expectErr: true},
		{name: "not a list", cborHex: "01", expectErr: true},
		{name: "non-numeric first item", cborHex: "824101", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.cborHex)
			require.NoError(t, err)
			id, err := cbor.DecodeIdFromList(data)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestStreamDecoderOffsets(t *testing.T) {
	// [0, h'0102', 7]
	data, err := hex.DecodeString("8300420102" + "07")
	require.NoError(t, err)
	dec, err := cbor.NewStreamDecoder(data)
	require.NoError(t, err)

	length, headerOffset, headerLen, err := dec.DecodeArrayHeader()
	require.NoError(t, err)
	assert.Equal(t, 3, length)
	assert.Equal(t, 0, headerOffset)
	assert.Equal(t, 1, headerLen)

	var msgType uint64
	start, n, err := dec.Decode(&msgType)
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 1, n)

	var payload []byte
	start, n, err = dec.Decode(&payload)
	require.NoError(t, err)
	assert.Equal(t, 2, start)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x01, 0x02}, payload)

	var last uint64
	_, _, err = dec.Decode(&last)
	require.NoError(t, err)
	assert.True(t, dec.EOF())
}

func TestStreamDecoderErrorPosition(t *testing.T) {
	// [0, [1]] where the second item is decoded as an integer
	data, err := hex.DecodeString("820081" + "01")
	require.NoError(t, err)
	dec, err := cbor.NewStreamDecoder(data)
	require.NoError(t, err)
	_, _, _, err = dec.DecodeArrayHeader()
	require.NoError(t, err)
	var msgType uint64
	_, _, err = dec.Decode(&msgType)
	require.NoError(t, err)
	var value uint64
	start, _, err := dec.Decode(&value)
	assert.Error(t, err)
	assert.Equal(t, 2, start)
}
