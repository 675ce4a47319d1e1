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

type State struct {
	Id   uint
	Name string
}

func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

func (s State) String() string {
	return s.Name
}

// StateTransition maps an inbound message type to the resulting state
type StateTransition struct {
	MsgType  uint8
	NewState State
}

type StateMapEntry struct {
	Transitions []StateTransition
	// Terminal states accept no further messages
	Terminal bool
}

type StateMap map[State]StateMapEntry

// Copy returns a copy of the state map
func (s StateMap) Copy() StateMap {
	ret := StateMap{}
	for k, v := range s {
		ret[k] = v
	}
	return ret
}

// nextState returns the state reached by receiving a message of the given type
// in the current state
func (s StateMap) nextState(current State, msgType uint8) (State, bool) {
	entry, ok := s[current]
	if !ok || entry.Terminal {
		return current, false
	}
	for _, transition := range entry.Transitions {
		if transition.MsgType == msgType {
			return transition.NewState, true
		}
	}
	return current, false
}
