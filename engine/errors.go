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

package engine

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
)

var (
	ErrEngineStopped = errors.New("exchange engine is stopped")
	ErrEngineRunning = errors.New("exchange engine is already running")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrUndefinedId   = errors.New("undefined content identifier")
	ErrNilBlock      = errors.New("nil block")
)

// SendError reports an outbound message that the transport could not deliver.
// The engine does not retry
type SendError struct {
	Peer        peer.Id
	MessageType uint8
	Id          block.Id
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf(
		"failed to send message type %d for %s to peer %s: %s",
		e.MessageType,
		e.Id.String(),
		e.Peer.String(),
		e.Err,
	)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
