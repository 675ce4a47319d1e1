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

package protocol

// Message is implemented by every mini-protocol message. Messages are encoded
// as a CBOR array whose first element is the message type
type Message interface {
	SetCbor([]byte)
	Cbor() []byte
	Type() uint8
}

// MessageBase is embedded by all mini-protocol messages
type MessageBase struct {
	_           struct{} `cbor:",toarray"`
	rawCbor     []byte
	MessageType uint8
}

// NewMessageBase returns a MessageBase for the given message type
func NewMessageBase(msgType uint8) MessageBase {
	return MessageBase{MessageType: msgType}
}

// SetCbor keeps a private copy of the encoded message, as received or as sent
func (m *MessageBase) SetCbor(data []byte) {
	if data == nil {
		m.rawCbor = nil
		return
	}
	m.rawCbor = append([]byte(nil), data...)
}

func (m *MessageBase) Cbor() []byte {
	return m.rawCbor
}

func (m *MessageBase) Type() uint8 {
	return m.MessageType
}
