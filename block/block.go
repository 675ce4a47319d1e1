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
	"bytes"
)

// Block is an immutable payload together with the identifier that names it.
// The payload is shared, never copied, and must not be modified
type Block struct {
	id   Id
	data []byte
}

// NewBlock pairs an identifier and payload without checking them. Use it only
// when the pairing is already trusted, such as when the caller computed the
// identifier itself
func NewBlock(id Id, data []byte) *Block {
	return &Block{
		id:   id,
		data: data,
	}
}

// NewBlockFromPayload computes the identifier of data and returns the block
func NewBlockFromPayload(data []byte, hashFunc HashFunc, codec Codec) (*Block, error) {
	id, err := Compute(data, hashFunc, codec)
	if err != nil {
		return nil, err
	}
	return NewBlock(id, data), nil
}

// NewRawBlock builds a raw-codec block hashed with sha2-256
func NewRawBlock(data []byte) *Block {
	// sha2-256 is always registered
	blk, _ := NewBlockFromPayload(data, HashSha2_256, CodecRaw)
	return blk
}

// VerifyBlock checks data against id and returns the block if they match. A
// mismatch returns an *IntegrityError
func VerifyBlock(id Id, data []byte) (*Block, error) {
	if !id.Defined() {
		return nil, &IntegrityError{Id: id}
	}
	digest, err := id.HashFunc().Sum(data)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(digest, id.Digest()) {
		return nil, &IntegrityError{Id: id, Digest: digest}
	}
	return NewBlock(id, data), nil
}

// Verify reports whether data hashes to the digest in id under the hash function
// that id declares
func Verify(data []byte, id Id) bool {
	_, err := VerifyBlock(id, data)
	return err == nil
}

func (b *Block) Id() Id {
	return b.id
}

func (b *Block) Data() []byte {
	return b.data
}

func (b *Block) Size() int {
	return len(b.data)
}

// Verify checks the block payload against its identifier
func (b *Block) Verify() bool {
	return Verify(b.data, b.id)
}

func (b *Block) String() string {
	return "[Block " + b.id.String() + "]"
}
