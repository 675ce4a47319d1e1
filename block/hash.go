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
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashFunc is a multihash function code
type HashFunc uint64

const (
	HashSha2_256   HashFunc = mh.SHA2_256
	HashSha3_256   HashFunc = mh.SHA3_256
	HashBlake2b256 HashFunc = 0xb220
)

// Codec is a multicodec payload type tag
type Codec uint64

const (
	CodecRaw     Codec = cid.Raw
	CodecDagPb   Codec = cid.DagProtobuf
	CodecDagCbor Codec = cid.DagCBOR
)

type hashFuncEntry struct {
	name   string
	size   int
	digest func([]byte) []byte
}

var hashFuncs = map[HashFunc]hashFuncEntry{
	HashSha2_256: {
		name: "sha2-256",
		size: sha256.Size,
		digest: func(data []byte) []byte {
			sum := sha256.Sum256(data)
			return sum[:]
		},
	},
	HashSha3_256: {
		name: "sha3-256",
		size: 32,
		digest: func(data []byte) []byte {
			sum := sha3.Sum256(data)
			return sum[:]
		},
	},
	HashBlake2b256: {
		name: "blake2b-256",
		size: blake2b.Size256,
		digest: func(data []byte) []byte {
			sum := blake2b.Sum256(data)
			return sum[:]
		},
	},
}

func (h HashFunc) String() string {
	if entry, ok := hashFuncs[h]; ok {
		return entry.name
	}
	return fmt.Sprintf("unknown(0x%x)", uint64(h))
}

// Supported returns whether blocks can be verified with this hash function
func (h HashFunc) Supported() bool {
	_, ok := hashFuncs[h]
	return ok
}

// Size returns the digest length in bytes, or 0 for an unsupported hash function
func (h HashFunc) Size() int {
	return hashFuncs[h].size
}

// Sum computes the digest of data
func (h HashFunc) Sum(data []byte) ([]byte, error) {
	entry, ok := hashFuncs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, h)
	}
	return entry.digest(data), nil
}

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecDagPb:
		return "dag-pb"
	case CodecDagCbor:
		return "dag-cbor"
	default:
		return fmt.Sprintf("codec(0x%x)", uint64(c))
	}
}
