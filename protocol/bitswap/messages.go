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

package bitswap

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/blinklabs-io/goblockswap/protocol"
)

// Message types
const (
	MessageTypeWant   = 0
	MessageTypeBlock  = 1
	MessageTypeCancel = 2
	MessageTypeHave   = 3
)

// WantType selects whether a Want asks for the block itself or only whether
// the peer holds it
type WantType uint8

const (
	WantTypeBlock WantType = 0
	WantTypeHave  WantType = 1
)

func (w WantType) String() string {
	switch w {
	case WantTypeBlock:
		return "block"
	case WantTypeHave:
		return "have"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(w))
	}
}

var (
	ErrFieldCount      = errors.New("unexpected number of message fields")
	ErrInvalidWantType = errors.New("invalid want type")
)

// NewMsgFromCbor parses a bitswap message from CBOR. Malformed input returns a
// *block.DecodeError with the byte offset of the offending field
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	var err error
	switch msgType {
	case MessageTypeWant:
		ret, err = decodeMsgWant(data)
	case MessageTypeBlock:
		ret, err = decodeMsgBlock(data)
	case MessageTypeCancel:
		ret, err = decodeMsgCancel(data)
	case MessageTypeHave:
		ret, err = decodeMsgHave(data)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

// messageDecoder walks the fields of a message, wrapping failures with their offset
type messageDecoder struct {
	dec *cbor.StreamDecoder
	len int
}

func newMessageDecoder(data []byte, expectedFields int) (*messageDecoder, error) {
	dec, err := cbor.NewStreamDecoder(data)
	if err != nil {
		return nil, err
	}
	length, headerOffset, _, err := dec.DecodeArrayHeader()
	if err != nil {
		return nil, &block.DecodeError{Offset: headerOffset, Err: err}
	}
	if length != expectedFields {
		return nil, &block.DecodeError{
			Offset: headerOffset,
			Err: fmt.Errorf(
				"%w: got %d, expected %d",
				ErrFieldCount,
				length,
				expectedFields,
			),
		}
	}
	// Skip message type, which has already been determined by the caller
	var msgType uint8
	if err := decodeField(dec, &msgType); err != nil {
		return nil, err
	}
	return &messageDecoder{dec: dec, len: len(data)}, nil
}

func decodeField(dec *cbor.StreamDecoder, dest any) error {
	start, _, err := dec.Decode(dest)
	if err != nil {
		return &block.DecodeError{Offset: start, Err: err}
	}
	return nil
}

func (d *messageDecoder) field(dest any) error {
	return decodeField(d.dec, dest)
}

// id decodes a byte string holding a content identifier. Errors from the
// identifier itself are reported relative to the start of the message
func (d *messageDecoder) id() (block.Id, error) {
	var idBytes []byte
	start, n, err := d.dec.Decode(&idBytes)
	if err != nil {
		return block.Undef, &block.DecodeError{Offset: start, Err: err}
	}
	id, err := block.DecodeId(idBytes)
	if err != nil {
		var decodeErr *block.DecodeError
		if errors.As(err, &decodeErr) {
			// Account for the byte string header preceding the identifier bytes
			headerLen := n - len(idBytes)
			return block.Undef, &block.DecodeError{
				Offset: start + headerLen + decodeErr.Offset,
				Err:    decodeErr.Err,
			}
		}
		return block.Undef, &block.DecodeError{Offset: start, Err: err}
	}
	return id, nil
}

func (d *messageDecoder) finish() error {
	if pos := d.dec.Position(); pos != d.len {
		return &block.DecodeError{Offset: pos, Err: block.ErrTrailingBytes}
	}
	return nil
}

type MsgWant struct {
	protocol.MessageBase
	Cid      block.Id
	Priority int32
	WantType WantType
}

func NewMsgWant(id block.Id, priority int32, wantType WantType) *MsgWant {
	m := &MsgWant{
		MessageBase: protocol.NewMessageBase(MessageTypeWant),
		Cid:         id,
		Priority:    priority,
		WantType:    wantType,
	}
	return m
}

func decodeMsgWant(data []byte) (*MsgWant, error) {
	d, err := newMessageDecoder(data, 4)
	if err != nil {
		return nil, err
	}
	m := NewMsgWant(block.Undef, 0, WantTypeBlock)
	if m.Cid, err = d.id(); err != nil {
		return nil, err
	}
	if err := d.field(&m.Priority); err != nil {
		return nil, err
	}
	wantTypeOffset := d.dec.Position()
	if err := d.field(&m.WantType); err != nil {
		return nil, err
	}
	if m.WantType != WantTypeBlock && m.WantType != WantTypeHave {
		return nil, &block.DecodeError{
			Offset: wantTypeOffset,
			Err:    fmt.Errorf("%w: %d", ErrInvalidWantType, m.WantType),
		}
	}
	return m, d.finish()
}

type MsgBlock struct {
	protocol.MessageBase
	Cid  block.Id
	Data []byte
}

func NewMsgBlock(id block.Id, data []byte) *MsgBlock {
	m := &MsgBlock{
		MessageBase: protocol.NewMessageBase(MessageTypeBlock),
		Cid:         id,
		Data:        data,
	}
	return m
}

func decodeMsgBlock(data []byte) (*MsgBlock, error) {
	d, err := newMessageDecoder(data, 3)
	if err != nil {
		return nil, err
	}
	m := NewMsgBlock(block.Undef, nil)
	if m.Cid, err = d.id(); err != nil {
		return nil, err
	}
	if err := d.field(&m.Data); err != nil {
		return nil, err
	}
	return m, d.finish()
}

type MsgCancel struct {
	protocol.MessageBase
	Cid block.Id
}

func NewMsgCancel(id block.Id) *MsgCancel {
	m := &MsgCancel{
		MessageBase: protocol.NewMessageBase(MessageTypeCancel),
		Cid:         id,
	}
	return m
}

func decodeMsgCancel(data []byte) (*MsgCancel, error) {
	d, err := newMessageDecoder(data, 2)
	if err != nil {
		return nil, err
	}
	m := NewMsgCancel(block.Undef)
	if m.Cid, err = d.id(); err != nil {
		return nil, err
	}
	return m, d.finish()
}

type MsgHave struct {
	protocol.MessageBase
	Cid block.Id
}

func NewMsgHave(id block.Id) *MsgHave {
	m := &MsgHave{
		MessageBase: protocol.NewMessageBase(MessageTypeHave),
		Cid:         id,
	}
	return m
}

func decodeMsgHave(data []byte) (*MsgHave, error) {
	d, err := newMessageDecoder(data, 2)
	if err != nil {
		return nil, err
	}
	m := NewMsgHave(block.Undef)
	if m.Cid, err = d.id(); err != nil {
		return nil, err
	}
	return m, d.finish()
}
