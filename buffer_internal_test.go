// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import "testing"

// TestBufferObserverEventsAtomicWithTransition verifies spec.md §3.1:
// "Transitions to AVAILABLE and OUTGOING emit observer events
// ('available', 'outgoing') atomically with the transition" — the
// callback must observe the *new* state, not the old one.
func TestBufferObserverEventsAtomicWithTransition(t *testing.T) {
	b := NewBuffer(0)
	var sawAvailableState BufferState
	availableFired := 0
	b.onAvailable = func(buf *Buffer) {
		availableFired++
		sawAvailableState = buf.State()
	}

	if err := b.SetReceived(make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(); err != nil {
		t.Fatal(err)
	}
	if availableFired != 1 {
		t.Fatalf("onAvailable fired %d times, want 1", availableFired)
	}
	if sawAvailableState != Available {
		t.Fatalf("onAvailable observed state %v, want Available", sawAvailableState)
	}

	var sawOutgoingState BufferState
	outgoingFired := 0
	b.onOutgoing = func(buf *Buffer) {
		outgoingFired++
		sawOutgoingState = buf.State()
	}
	if _, err := b.SetReserved(); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(); err != nil {
		t.Fatal(err)
	}
	if outgoingFired != 1 {
		t.Fatalf("onOutgoing fired %d times, want 1", outgoingFired)
	}
	if sawOutgoingState != Outgoing {
		t.Fatalf("onOutgoing observed state %v, want Outgoing", sawOutgoingState)
	}
}
