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

// Package cbor provides the CBOR encoding/decoding used for all wire messages.
//
// This package wraps github.com/fxamacker/cbor/v2 with a deterministic encoder
// and a cached decoder mode.
//
// Every mini-protocol message is a CBOR array whose first element is the
// message type. Use DecodeIdFromList to find the message type without fully
// decoding the message, and StreamDecoder to decode the remaining fields one
// at a time while keeping track of the byte offset of each field, so that a
// malformed field can be reported with its position in the payload.
package cbor
