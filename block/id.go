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

package block

import (
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
)

const idVersion = 1

// Id is a content identifier: a CIDv1 naming a payload type and a multihash digest.
// The zero value is undefined and never matches a block. Id values are comparable
// and safe to use as map keys
type Id struct {
	c cid.Cid
}

// Undef is the undefined Id
var Undef = Id{}

// Compute returns the Id of payload under the given hash function and codec
func Compute(payload []byte, hashFunc HashFunc, codec Codec) (Id, error) {
	digest, err := hashFunc.Sum(payload)
	if err != nil {
		return Undef, err
	}
	return newId(digest, hashFunc, codec)
}

func newId(digest []byte, hashFunc HashFunc, codec Codec) (Id, error) {
	mhash, err := mh.Encode(digest, uint64(hashFunc))
	if err != nil {
		return Undef, err
	}
	return Id{c: cid.NewCidV1(uint64(codec), mhash)}, nil
}

// DecodeId parses the compact binary form produced by Id.Bytes. Malformed input
// returns a *DecodeError with the offset where decoding stopped
func DecodeId(data []byte) (Id, error) {
	offset := 0
	readUvarint := func() (uint64, error) {
		val, n, err := varint.FromUvarint(data[offset:])
		if err != nil {
			if len(data[offset:]) == 0 || errors.Is(err, varint.ErrUnderflow) {
				err = io.ErrUnexpectedEOF
			}
			return 0, &DecodeError{Offset: offset, Err: err}
		}
		offset += n
		return val, nil
	}
	version, err := readUvarint()
	if err != nil {
		return Undef, err
	}
	if version != idVersion {
		return Undef, &DecodeError{
			Offset: 0,
			Err:    fmt.Errorf("%w: %d", ErrUnsupportedVersion, version),
		}
	}
	codec, err := readUvarint()
	if err != nil {
		return Undef, err
	}
	hashOffset := offset
	hashCode, err := readUvarint()
	if err != nil {
		return Undef, err
	}
	hashFunc := HashFunc(hashCode)
	if !hashFunc.Supported() {
		return Undef, &DecodeError{
			Offset: hashOffset,
			Err:    fmt.Errorf("%w: %s", ErrUnsupportedHash, hashFunc),
		}
	}
	lengthOffset := offset
	digestLen, err := readUvarint()
	if err != nil {
		return Undef, err
	}
	if digestLen != uint64(hashFunc.Size()) {
		return Undef, &DecodeError{
			Offset: lengthOffset,
			Err: fmt.Errorf(
				"%w: got %d, expected %d",
				ErrDigestLength,
				digestLen,
				hashFunc.Size(),
			),
		}
	}
	if uint64(len(data)-offset) < digestLen {
		return Undef, &DecodeError{Offset: len(data), Err: io.ErrUnexpectedEOF}
	}
	digest := data[offset : offset+int(digestLen)]
	offset += int(digestLen)
	if offset != len(data) {
		return Undef, &DecodeError{Offset: offset, Err: ErrTrailingBytes}
	}
	return newId(digest, hashFunc, Codec(codec))
}

// ParseId parses the string form produced by Id.String
func ParseId(s string) (Id, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("invalid content identifier %q: %w", s, err)
	}
	if c.Version() != idVersion {
		return Undef, fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Version())
	}
	return DecodeId(c.Bytes())
}

// Bytes returns the compact binary form
func (i Id) Bytes() []byte {
	if !i.c.Defined() {
		return nil
	}
	return i.c.Bytes()
}

func (i Id) String() string {
	if !i.c.Defined() {
		return "<undef>"
	}
	return i.c.String()
}

func (i Id) Defined() bool {
	return i.c.Defined()
}

func (i Id) Codec() Codec {
	return Codec(i.c.Type())
}

func (i Id) HashFunc() HashFunc {
	return HashFunc(i.c.Prefix().MhType)
}

// Digest returns the raw digest bytes
func (i Id) Digest() []byte {
	decoded, err := mh.Decode(i.c.Hash())
	if err != nil {
		return nil
	}
	return decoded.Digest
}

func (i Id) Equal(other Id) bool {
	return i == other
}

// Less orders Ids bytewise on their binary form
func (i Id) Less(other Id) bool {
	return i.c.KeyString() < other.c.KeyString()
}

// Cid returns the underlying CID
func (i Id) Cid() cid.Cid {
	return i.c
}

func (i Id) MarshalCBOR() ([]byte, error) {
	return cbor.Encode(i.Bytes())
}

func (i *Id) UnmarshalCBOR(data []byte) error {
	var tmp []byte
	if _, err := cbor.Decode(data, &tmp); err != nil {
		return err
	}
	id, err := DecodeId(tmp)
	if err != nil {
		return err
	}
	*i = id
	return nil
}

func (i Id) MarshalText() ([]byte, error) {
	return []byte(i.c.String()), nil
}

func (i *Id) UnmarshalText(text []byte) error {
	id, err := ParseId(string(text))
	if err != nil {
		return err
	}
	*i = id
	return nil
}
