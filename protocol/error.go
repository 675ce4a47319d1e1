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

import "errors"

var ErrProtocolShuttingDown = errors.New("protocol is shutting down")

var ErrSendQueueFull = errors.New("protocol send queue is full")

var ErrMessageTooLarge = errors.New("encoded message exceeds maximum segment payload")

// Protocol violation errors cause connection termination
var (
	ErrProtocolViolationUnexpectedMessage = errors.New(
		"protocol violation: unexpected message for current state",
	)
	ErrProtocolViolationUnknownMessage = errors.New(
		"protocol violation: unknown message type",
	)
)
