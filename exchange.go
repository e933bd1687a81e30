// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Exchange is the Buffer Exchange (spec.md §4.2): a pool of 2N
// Buffers paired with a remote side over a Transport, an outbound
// send path with flow control, and an inbound receive path with slot
// accounting.
//
// Exchange has no internal lock. Every method must be called from the
// single goroutine that owns this side, matching spec.md §5's
// single-threaded-cooperative-per-side model; instanceID,
// peerInstanceID, and numSlotsAvailable use atomix.Uint32 not for
// that goroutine's own access pattern but so a separate
// metrics/debug goroutine can read them without racing.
type Exchange struct {
	transport   Transport
	unsubscribe func()

	slots []*Buffer
	n     int

	instanceID        atomix.Uint32 // this side's own id, tags outgoing envelopes
	peerInstanceID    atomix.Uint32 // 0 until adopted from the first valid message
	numSlotsAvailable atomix.Uint32

	onData func(buf *Buffer, sourceID *int32)
}

// instanceCounter is the global monotonic counter backing each
// Exchange's auto-assigned instanceID (spec.md §3.2: "each side
// auto-assigns a distinct id at construction"), the same
// atomix.Uint32 global-counter idiom as serial.go's tableCounter.
var instanceCounter atomix.Uint32

// nextInstanceID returns the next monotonically increasing, always
// nonzero instanceID so it is never confused with the "unassigned"
// sentinel value 0 that onMessageReceived checks for.
func nextInstanceID() uint32 {
	return instanceCounter.Add(1)
}

// ExchangeOption configures an Exchange at construction.
type ExchangeOption func(*Exchange)

// WithInstanceID overrides this side's auto-assigned instanceID up
// front (spec.md §9's "safer alternative, worth considering during
// rewrite" — pinning both sides to a pre-agreed id instead of relying
// on first-message peer adoption).
func WithInstanceID(id uint32) ExchangeOption {
	return func(e *Exchange) { e.instanceID.Store(id) }
}

// NewExchange constructs an Exchange over transport with bufferSize
// bytes per region and n buffer slots per side (2n Buffer values
// total, spec.md §3.2). It builds the pool, subscribes each Buffer's
// onOutgoing callback, and registers a message listener on transport.
func NewExchange(transport Transport, bufferSize, n int, opts ...ExchangeOption) *Exchange {
	e := &Exchange{transport: transport, n: n}
	e.instanceID.Store(nextInstanceID())
	for _, opt := range opts {
		opt(e)
	}

	e.slots = make([]*Buffer, 2*n)
	for i := 0; i < n; i++ {
		b := NewBuffer(bufferSize)
		b.onOutgoing = e.onBufferOutgoing
		e.slots[i] = b
	}
	for i := n; i < 2*n; i++ {
		b := NewBuffer(0)
		b.onOutgoing = e.onBufferOutgoing
		e.slots[i] = b
	}
	// numSlotsAvailable starts at n: exactly the n Available buffers
	// currently hold a non-null region (spec.md §3.2's literal
	// definition). Send and receive apply equal and opposite deltas
	// (spec.md §8 property 5), so a matched send/receive pair always
	// returns this counter to n regardless of which direction the
	// literal wording assigns to which operation.
	e.numSlotsAvailable.Store(uint32(n))

	e.unsubscribe = transport.Listen(e.onMessageReceived)
	return e
}

// OnData registers the callback fired when a new batch is available
// for reading (spec.md §6.4's data(buffer, sourceId) event).
func (e *Exchange) OnData(fn func(buf *Buffer, sourceID *int32)) {
	e.onData = fn
}

// NumSlotsAvailable returns this side's slot counter (spec.md §3.2).
// It starts at n; every send adds 1 and every receive subtracts 1, so
// after a send it no longer equals the number of slots on this side
// that hold a region.
func (e *Exchange) NumSlotsAvailable() uint32 {
	return e.numSlotsAvailable.Load()
}

// InstanceID returns this side's own exchange instance id, assigned
// at construction and never zero (spec.md §3.2).
func (e *Exchange) InstanceID() uint32 {
	return e.instanceID.Load()
}

// PeerInstanceID returns the remote instance id this side has bound
// to, or 0 if no valid message has arrived yet (spec.md §3.2's
// adoption handshake).
func (e *Exchange) PeerInstanceID() uint32 {
	return e.peerInstanceID.Load()
}

// GetWriteBuffer scans slots in insertion order for the first
// Available buffer, reserves it, and returns it. Returns nil if none
// is Available — back-pressure, not an error (spec.md §4.2, §7).
func (e *Exchange) GetWriteBuffer() *Buffer {
	for _, b := range e.slots {
		if b.State() == Available {
			// SetReserved cannot fail: we just checked the state under
			// the single-goroutine-per-side assumption (spec.md §5).
			_, _ = b.SetReserved()
			return b
		}
	}
	return nil
}

// onBufferOutgoing is the flow-control gate of spec.md §4.2: send
// immediately if the remote side is known to be holding at least one
// slot (total - numSlotsAvailable >= 1), which is exactly the
// condition "the remote has room for one more" (spec.md §9's decided
// Open Question). Otherwise leave the buffer Outgoing for a later
// opportunistic flush from onDataReceived.
func (e *Exchange) onBufferOutgoing(b *Buffer) {
	total := uint32(len(e.slots))
	if total-e.numSlotsAvailable.Load() >= 1 {
		e.send(b)
	}
}

// send transitions b to NotAvailable, hands its region to the
// transport with ownership-transfer semantics, and increments
// numSlotsAvailable (spec.md §4.2).
func (e *Exchange) send(b *Buffer) {
	region, err := b.SetSent()
	if err != nil {
		// b was not Outgoing; onBufferOutgoing runs right after the
		// transition to Outgoing and onDataReceived checks the state
		// first, so this indicates a broken invariant elsewhere in this
		// package.
		panic(err)
	}
	env := Envelope{
		Identifier: magicIdentifier,
		Instance:   e.instanceID.Load(),
		Buffer:     region,
	}
	if err := e.transport.PostMessage(env); err != nil {
		panic(err)
	}
	e.numSlotsAvailable.Add(1)
}

// Send is the caller-facing counterpart of send for a Buffer the
// caller already holds Reserved: it releases the buffer (moving it to
// Outgoing, which may trigger an immediate flush via
// onBufferOutgoing) so the caller does not need to know about the
// Buffer/Exchange interaction beyond Release.
func (e *Exchange) Send(b *Buffer) error {
	return b.Release()
}

// onMessageReceived validates the envelope (spec.md §6.1) and, once
// valid, adopts the remote's instanceID as this side's peer or drops
// a foreign message before handing the payload to onDataReceived.
func (e *Exchange) onMessageReceived(env Envelope) {
	if env.Identifier != magicIdentifier {
		return // protocol mismatch: silently dropped, spec.md §7
	}
	if e.peerInstanceID.Load() == 0 {
		e.peerInstanceID.CompareAndSwap(0, env.Instance)
	}
	if e.peerInstanceID.Load() != env.Instance {
		return // protocol mismatch: silently dropped, spec.md §7
	}
	if err := e.onDataReceived(env.Buffer, env.SourceID); err != nil {
		panic(err)
	}
}

// onDataReceived places region into the first NotAvailable slot,
// opportunistically flushing any Outgoing slots first so a deferred
// send always goes out before the data event for the newly arrived
// buffer (spec.md §4.2, §5 batch-ordering-under-flush guarantee).
// Returns ErrOverflow if no NotAvailable slot exists.
func (e *Exchange) onDataReceived(region []byte, sourceID *int32) error {
	var candidate *Buffer
	for _, b := range e.slots {
		switch b.State() {
		case Outgoing:
			e.send(b)
		case NotAvailable:
			if candidate == nil {
				candidate = b
			}
		}
	}
	if candidate == nil {
		return ErrOverflow
	}
	if err := candidate.SetReceived(region); err != nil {
		return err
	}
	e.numSlotsAvailable.Add(^uint32(0)) // -1
	if e.onData != nil {
		e.onData(candidate, sourceID)
	}
	return nil
}

// Poll drains every message currently queued on the transport,
// dispatching each to onMessageReceived, and returns the number
// delivered. Must be called from the single goroutine that owns this
// side (spec.md §5).
func (e *Exchange) Poll() int {
	return e.transport.Pump()
}

// PumpUntil blocks, retrying Poll under iox.Backoff, until at least
// one message has been delivered — the blocking convenience wrapper
// mentioned in SPEC_FULL.md §10, modeled on sess.dispatchWait /
// sess.Run's backoff loop. Intended for tests and the demo command,
// not for latency-sensitive production polling loops.
func (e *Exchange) PumpUntil() int {
	var bo iox.Backoff
	for {
		if n := e.Poll(); n > 0 {
			return n
		}
		bo.Wait()
	}
}

// Destroy removes the transport listener (spec.md §4.2).
func (e *Exchange) Destroy() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}
