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

package muxer

import (
	"time"
)

const (
	// SegmentHeaderLength is the encoded size of SegmentHeader
	SegmentHeaderLength = 10

	// SegmentMaxPayloadLength is the largest payload carried in a single segment.
	// Each segment carries exactly one mini-protocol message
	SegmentMaxPayloadLength = 4 * 1024 * 1024
)

type SegmentHeader struct {
	Timestamp     uint32
	ProtocolId    uint16
	PayloadLength uint32
}

type Segment struct {
	SegmentHeader
	Payload []byte
}

// NewSegment returns a new Segment given a protocol ID and payload. It returns
// nil if the payload is empty or larger than SegmentMaxPayloadLength
func NewSegment(protocolId uint16, payload []byte) *Segment {
	if len(payload) == 0 || len(payload) > SegmentMaxPayloadLength {
		return nil
	}
	header := SegmentHeader{
		// #nosec G115 -- truncation to the low 32 bits is intended
		Timestamp:     uint32(time.Now().UnixNano() & 0xffffffff),
		ProtocolId:    protocolId,
		PayloadLength: uint32(len(payload)), // #nosec G115
	}
	segment := &Segment{
		SegmentHeader: header,
		Payload:       payload,
	}
	return segment
}
