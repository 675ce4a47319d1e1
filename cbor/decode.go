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

package cbor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	_cbor "github.com/fxamacker/cbor/v2"
)

var (
	cachedDecMode     _cbor.DecMode
	cachedDecModeErr  error
	cachedDecModeOnce sync.Once
)

// getDecMode returns a cached DecMode, initializing it on first use.
func getDecMode() (_cbor.DecMode, error) {
	cachedDecModeOnce.Do(func() {
		decOptions := _cbor.DecOptions{
			ExtraReturnErrors: _cbor.ExtraDecErrorUnknownField,
			MaxNestedLevels:   16,
		}
		cachedDecMode, cachedDecModeErr = decOptions.DecMode()
	})
	return cachedDecMode, cachedDecModeErr
}

func Decode(dataBytes []byte, dest any) (int, error) {
	data := bytes.NewReader(dataBytes)
	decMode, err := getDecMode()
	if err != nil {
		return 0, err
	}
	dec := decMode.NewDecoder(data)
	err = dec.Decode(dest)
	return dec.NumBytesRead(), err
}

// Extract the first item from a CBOR list. This will return the first item from the
// provided list if it's numeric and an error otherwise
func DecodeIdFromList(cborData []byte) (int, error) {
	listLen, headerLen, err := arrayHeader(cborData, 0)
	if err != nil {
		return 0, err
	}
	if listLen == 0 {
		return 0, errors.New("cannot return first item from empty list")
	}
	// Small values are stored directly in the first byte after the header
	if len(cborData) > headerLen && cborData[headerLen] <= CborMaxUintSimple {
		return int(cborData[headerLen]), nil
	}
	var tmp []RawMessage
	if _, err := Decode(cborData, &tmp); err != nil {
		return 0, err
	}
	var id uint64
	if _, err := Decode(tmp[0], &id); err != nil {
		return 0, fmt.Errorf("first list item was not numeric: %w", err)
	}
	if id > uint64(math.MaxInt32) {
		return 0, errors.New("decoded numeric value too large")
	}
	return int(id), nil
}

// Determine the length of a CBOR list
func ListLength(cborData []byte) (int, error) {
	listLen, _, err := arrayHeader(cborData, 0)
	return listLen, err
}

// arrayHeader parses a definite-length CBOR array header at the given offset and
// returns the number of elements and the length of the header
func arrayHeader(data []byte, offset int) (int, int, error) {
	if offset >= len(data) {
		return 0, 0, errors.New("unexpected end of data")
	}
	firstByte := data[offset]
	majorType := firstByte & CborTypeMask
	if majorType != CborTypeArray {
		return 0, 0, fmt.Errorf("expected array (0x%x), got 0x%x", CborTypeArray, majorType)
	}
	additionalInfo := firstByte & 0x1f
	switch {
	case additionalInfo < 24:
		return int(additionalInfo), 1, nil
	case additionalInfo == 24:
		if offset+2 > len(data) {
			return 0, 0, errors.New("unexpected end of data reading array length")
		}
		return int(data[offset+1]), 2, nil
	case additionalInfo == 25:
		if offset+3 > len(data) {
			return 0, 0, errors.New("unexpected end of data reading array length")
		}
		return int(data[offset+1])<<8 | int(data[offset+2]), 3, nil
	case additionalInfo == 26:
		if offset+5 > len(data) {
			return 0, 0, errors.New("unexpected end of data reading array length")
		}
		len32 := uint32(data[offset+1])<<24 | uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<8 | uint32(data[offset+4])
		if len32 > uint32(math.MaxInt32) {
			return 0, 0, errors.New("array length exceeds maximum int32 value")
		}
		return int(len32), 5, nil
	case additionalInfo == 31:
		return 0, 0, errors.New("indefinite length arrays not supported")
	default:
		return 0, 0, fmt.Errorf("invalid array additional info: %d", additionalInfo)
	}
}

// StreamDecoder provides sequential CBOR decoding with position tracking.
// It wraps the underlying decoder to track byte offsets of each decoded item.
type StreamDecoder struct {
	dec      *_cbor.Decoder
	decMode  _cbor.DecMode
	data     []byte
	consumed int // bytes consumed by Advance() calls
}

// NewStreamDecoder creates a decoder for sequential CBOR item extraction with position tracking.
func NewStreamDecoder(data []byte) (*StreamDecoder, error) {
	decMode, err := getDecMode()
	if err != nil {
		return nil, err
	}
	return &StreamDecoder{
		dec:     decMode.NewDecoder(bytes.NewReader(data)),
		decMode: decMode,
		data:    data,
	}, nil
}

// Position returns the current byte position in the stream.
func (d *StreamDecoder) Position() int {
	return d.consumed + d.dec.NumBytesRead()
}

// Decode decodes the next CBOR item into dest and returns its byte range.
// Returns (startOffset, length, error).
func (d *StreamDecoder) Decode(dest any) (int, int, error) {
	start := d.Position()
	if err := d.dec.Decode(dest); err != nil {
		return start, 0, err
	}
	return start, d.Position() - start, nil
}

// EOF returns true if the decoder has reached the end of the data.
func (d *StreamDecoder) EOF() bool {
	return d.Position() >= len(d.data)
}

// Advance moves the decoder position forward by n bytes without decoding.
func (d *StreamDecoder) Advance(n int) error {
	if n < 0 {
		return errors.New("cannot advance by negative amount")
	}
	newPos := d.Position() + n
	if newPos > len(d.data) {
		return errors.New("advance would exceed data bounds")
	}
	d.consumed = newPos
	// Reinitialize decoder with remaining data, reusing cached DecMode
	d.dec = d.decMode.NewDecoder(bytes.NewReader(d.data[d.consumed:]))
	return nil
}

// DecodeArrayHeader decodes a CBOR array header and returns the number of elements.
// This advances the position past the header only, not the array contents.
// Returns (arrayLength, headerOffset, headerLength, error).
func (d *StreamDecoder) DecodeArrayHeader() (int, int, int, error) {
	absStart := d.Position()
	length, headerLen, err := arrayHeader(d.data, absStart)
	if err != nil {
		return 0, absStart, 0, err
	}
	if err := d.Advance(headerLen); err != nil {
		return 0, absStart, 0, err
	}
	return length, absStart, headerLen, nil
}
