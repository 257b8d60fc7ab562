// Copyright 2026 The gVisor Authors.
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

package packet

// Error represents an error in the packet construction error space.
//
// Errors are compared by identity; wrap them with fmt.Errorf and %w to add
// context and match them with errors.Is.
type Error struct {
	msg string
}

// Error implements error.
func (e *Error) Error() string {
	return e.msg
}

var (
	// ErrOutOfBounds indicates that a field access would extend past the end
	// of the buffer.
	ErrOutOfBounds = &Error{msg: "field access out of bounds"}

	// ErrValueOutOfRange indicates that a value does not fit in the bit width
	// of the field it was written to.
	ErrValueOutOfRange = &Error{msg: "value out of range"}

	// ErrInvalidatedView indicates that a header view was used after the
	// geometry of its buffer changed.
	ErrInvalidatedView = &Error{msg: "header view invalidated"}

	// ErrBufferTooSmall indicates that a protocol chain does not fit in the
	// buffer.
	ErrBufferTooSmall = &Error{msg: "buffer too small"}

	// ErrSizeExceedsCapacity indicates that a buffer was resized past its
	// capacity.
	ErrSizeExceedsCapacity = &Error{msg: "size exceeds capacity"}

	// ErrUnsupportedProtocol indicates an unknown protocol identifier.
	ErrUnsupportedProtocol = &Error{msg: "unsupported protocol"}

	// ErrMalformedAddress indicates a textual address that could not be
	// parsed.
	ErrMalformedAddress = &Error{msg: "malformed address"}

	// ErrControllerStopped indicates a send request on a stopped pacing
	// controller.
	ErrControllerStopped = &Error{msg: "controller stopped"}

	// ErrUnknownArgument indicates a named argument that no layer declares.
	ErrUnknownArgument = &Error{msg: "unknown named argument"}
)
