// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the three materialized error kinds of
// spec.md §7 (the fourth kind, ProtocolMismatch, is a silent drop by
// design, not a returned error). Wrap with fmt.Errorf("%w: ...", ...)
// so callers can still errors.Is against the sentinel while getting a
// descriptive message.
var (
	// ErrIllegalState is returned when a Buffer operation is invoked
	// from a state that does not permit it (spec.md §3.1, §7).
	ErrIllegalState = errors.New("bufex: illegal state")

	// ErrOverflow is returned when a valid message arrives but no
	// local slot is NotAvailable to receive it — a protocol violation
	// by the remote side's slot accounting (spec.md §4.2, §7).
	ErrOverflow = errors.New("bufex: buffer pool overflow")

	// ErrSetupMissing is the value NewCodec panics with when it is
	// given a nil CompiledTable instead of a SetupEndpoint result
	// (spec.md §6.3, §7).
	ErrSetupMissing = errors.New("bufex: endpoint not set up")
)

// illegalState builds an ErrIllegalState wrapping error naming the
// offending operation and the state it was attempted from.
func illegalState(op string, s BufferState) error {
	return fmt.Errorf("%w: %s called while buffer is %s", ErrIllegalState, op, s)
}
