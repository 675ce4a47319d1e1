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

package handshake

import (
	"fmt"

	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/blinklabs-io/goblockswap/protocol"
)

// Message types
const (
	MessageTypeHello  = 0
	MessageTypeRefuse = 1
	MessageTypeProof  = 2
)

// NonceSize is the length of the random challenge in a Hello message
const NonceSize = 32

// Refusal reasons
const (
	RefuseReasonVersionMismatch      = 0
	RefuseReasonNetworkMagicMismatch = 1
	RefuseReasonInvalidKey           = 2
	RefuseReasonInvalidProof         = 3
)

func RefuseReasonString(reason uint8) string {
	switch reason {
	case RefuseReasonVersionMismatch:
		return "version mismatch"
	case RefuseReasonNetworkMagicMismatch:
		return "network magic mismatch"
	case RefuseReasonInvalidKey:
		return "invalid public key"
	case RefuseReasonInvalidProof:
		return "invalid key proof"
	default:
		return fmt.Sprintf("unknown reason %d", reason)
	}
}

// NewMsgFromCbor parses a Handshake message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeHello:
		ret = &MsgHello{}
	case MessageTypeRefuse:
		ret = &MsgRefuse{}
	case MessageTypeProof:
		ret = &MsgProof{}
	default:
		return nil, nil
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

type MsgHello struct {
	protocol.MessageBase
	Version      uint16
	NetworkMagic uint32
	PublicKey    []byte
	Nonce        []byte
}

func NewMsgHello(
	version uint16,
	networkMagic uint32,
	publicKey []byte,
	nonce []byte,
) *MsgHello {
	m := &MsgHello{
		MessageBase:  protocol.NewMessageBase(MessageTypeHello),
		Version:      version,
		NetworkMagic: networkMagic,
		PublicKey:    publicKey,
		Nonce:        nonce,
	}
	return m
}

type MsgRefuse struct {
	protocol.MessageBase
	Reason  uint8
	Message string
}

func NewMsgRefuse(reason uint8, message string) *MsgRefuse {
	m := &MsgRefuse{
		MessageBase: protocol.NewMessageBase(MessageTypeRefuse),
		Reason:      reason,
		Message:     message,
	}
	return m
}

// MsgProof carries a signature over the receiver's Hello nonce, made with the
// private key matching the sender's announced public key
type MsgProof struct {
	protocol.MessageBase
	Signature []byte
}

func NewMsgProof(signature []byte) *MsgProof {
	m := &MsgProof{
		MessageBase: protocol.NewMessageBase(MessageTypeProof),
		Signature:   signature,
	}
	return m
}
