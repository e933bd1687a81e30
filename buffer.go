// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

// BufferState is one of the five states in a Buffer's ownership
// lifecycle (spec.md §3.1). The ring is:
//
//	NotAvailable -> Received -> Available -> Reserved -> Outgoing -> NotAvailable
type BufferState int

const (
	// NotAvailable means this side does not hold the byte region.
	NotAvailable BufferState = iota
	// Received means an incoming region has arrived but has not yet
	// been handed to the application.
	Received
	// Available means the region is writable, held by the exchange,
	// and not yet handed out to the application.
	Available
	// Reserved means the region has been handed to the application
	// for writing.
	Reserved
	// Outgoing means the application has released the region and it
	// is pending send to the remote side.
	Outgoing
)

// String implements fmt.Stringer for panic messages and logs.
func (s BufferState) String() string {
	switch s {
	case NotAvailable:
		return "NotAvailable"
	case Received:
		return "Received"
	case Available:
		return "Available"
	case Reserved:
		return "Reserved"
	case Outgoing:
		return "Outgoing"
	default:
		return "BufferState(?)"
	}
}

// Buffer holds ownership of a fixed-size byte region plus its
// lifecycle state (spec.md §3.1). A Buffer has no internal locking:
// it assumes its owner does not share it across preemptive threads
// (spec.md §5). An Exchange builds its pool from Buffers (§3.2), and a
// Buffer can also be used on its own; Buffer has no dependency on
// Exchange.
type Buffer struct {
	state BufferState
	data  []byte

	// onAvailable and onOutgoing are invoked synchronously, atomically
	// with the transition into the corresponding state (spec.md §3.1).
	// Both may be nil.
	onAvailable func(*Buffer)
	onOutgoing  func(*Buffer)
}

// NewBuffer constructs a Buffer. With size > 0 it starts Available
// with a freshly allocated region of size bytes; with size == 0 it
// starts NotAvailable with no region, ready to receive one later via
// SetReceived (spec.md §4.1 "new(size?)").
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		return &Buffer{state: NotAvailable}
	}
	return &Buffer{state: Available, data: make([]byte, size)}
}

// State returns the buffer's current lifecycle state.
func (b *Buffer) State() BufferState {
	return b.state
}

// Data returns the current byte region, or nil in NotAvailable
// (spec.md §3.1: "data is non-null in {Received, Available, Reserved,
// Outgoing}; null in NotAvailable").
func (b *Buffer) Data() []byte {
	return b.data
}

// SetReserved requires Available; transitions to Reserved and
// returns the raw region for mutation. The byte region is only ever
// mutated while Reserved (spec.md §3.1 invariant).
func (b *Buffer) SetReserved() ([]byte, error) {
	if b.state != Available {
		return nil, illegalState("SetReserved", b.state)
	}
	b.state = Reserved
	return b.data, nil
}

// Release requires Received or Reserved. From Received it transitions
// to Available and fires onAvailable; from Reserved it transitions to
// Outgoing and fires onOutgoing. Any other starting state is
// ErrIllegalState.
func (b *Buffer) Release() error {
	switch b.state {
	case Received:
		b.state = Available
		if b.onAvailable != nil {
			b.onAvailable(b)
		}
		return nil
	case Reserved:
		b.state = Outgoing
		if b.onOutgoing != nil {
			b.onOutgoing(b)
		}
		return nil
	default:
		return illegalState("Release", b.state)
	}
}

// SetSent requires Outgoing; transitions to NotAvailable and returns
// the region so the caller can hand it to the transport as a
// transferable attachment. The caller must not retain or mutate the
// returned slice after this call — ownership has moved (spec.md §5).
func (b *Buffer) SetSent() ([]byte, error) {
	if b.state != Outgoing {
		return nil, illegalState("SetSent", b.state)
	}
	region := b.data
	b.data = nil
	b.state = NotAvailable
	return region, nil
}

// SetReceived requires NotAvailable; attaches region and transitions
// to Received.
func (b *Buffer) SetReceived(region []byte) error {
	if b.state != NotAvailable {
		return illegalState("SetReceived", b.state)
	}
	b.data = region
	b.state = Received
	return nil
}
