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

// Package peer provides peer identities derived from ed25519 public keys
package peer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/base58"
	mh "github.com/multiformats/go-multihash"
)

var (
	ErrInvalidPublicKey = errors.New("invalid ed25519 public key")
	ErrInvalidPeerId    = errors.New("invalid peer ID")
)

// Id identifies a peer. It is the sha2-256 multihash of the peer's ed25519 public key
type Id struct {
	mhash string
}

// IdFromPublicKey derives a peer Id after checking that the key encodes a valid
// curve point
func IdFromPublicKey(pubKey []byte) (Id, error) {
	if err := ValidatePublicKey(pubKey); err != nil {
		return Id{}, err
	}
	digest := sha256.Sum256(pubKey)
	mhash, err := mh.Encode(digest[:], mh.SHA2_256)
	if err != nil {
		return Id{}, err
	}
	return Id{mhash: string(mhash)}, nil
}

// ValidatePublicKey checks that pubKey is a canonical encoding of a point on edwards25519
func ValidatePublicKey(pubKey []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidPublicKey,
			ed25519.PublicKeySize,
			len(pubKey),
		)
	}
	if _, err := new(edwards25519.Point).SetBytes(pubKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return nil
}

// ParseId parses the base58 form returned by Id.String
func ParseId(s string) (Id, error) {
	data := base58.Decode(s)
	if len(data) == 0 {
		return Id{}, fmt.Errorf("%w: %q", ErrInvalidPeerId, s)
	}
	decoded, err := mh.Decode(data)
	if err != nil {
		return Id{}, fmt.Errorf("%w: %w", ErrInvalidPeerId, err)
	}
	if decoded.Code != mh.SHA2_256 {
		return Id{}, fmt.Errorf("%w: unexpected hash function 0x%x", ErrInvalidPeerId, decoded.Code)
	}
	return Id{mhash: string(data)}, nil
}

func (i Id) String() string {
	if i.mhash == "" {
		return "<none>"
	}
	return base58.Encode([]byte(i.mhash))
}

// ShortString returns an abbreviated form for logging
func (i Id) ShortString() string {
	s := i.String()
	if len(s) <= 12 {
		return s
	}
	return s[len(s)-12:]
}

func (i Id) Bytes() []byte {
	return []byte(i.mhash)
}

func (i Id) IsZero() bool {
	return i.mhash == ""
}

// Less orders peer Ids bytewise
func (i Id) Less(other Id) bool {
	return i.mhash < other.mhash
}

func (i Id) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Id) UnmarshalText(text []byte) error {
	id, err := ParseId(string(text))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// KeyPair is a node identity key
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a new random key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// KeyPairFromSeed derives a key pair from a 32-byte seed
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf(
			"invalid seed length: expected %d bytes, got %d",
			ed25519.SeedSize,
			len(seed),
		)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected public key type")
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Id returns the peer Id for this key pair
func (k *KeyPair) Id() Id {
	// A key produced by ed25519 is always a valid point
	id, _ := IdFromPublicKey(k.PublicKey)
	return id
}
