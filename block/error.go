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
	"errors"
	"fmt"
)

var (
	ErrUnsupportedHash    = errors.New("unsupported hash function")
	ErrUnsupportedVersion = errors.New("unsupported content identifier version")
	ErrDigestLength       = errors.New("digest length does not match hash function")
	ErrTrailingBytes      = errors.New("trailing bytes after content identifier")
)

// DecodeError is returned for malformed wire input. Offset is the byte offset
// within the input where decoding stopped
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IntegrityError is returned when a payload does not hash to the identifier
// that names it
type IntegrityError struct {
	Id     Id
	Digest []byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf(
		"integrity check failed for %s: computed %s digest %x",
		e.Id,
		e.Id.HashFunc(),
		e.Digest,
	)
}
