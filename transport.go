// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// magicIdentifier is the constant bexIdentifier every valid Envelope
// must carry (spec.md §6.1).
const magicIdentifier uint32 = 2504718562

// Envelope is the wire-level transport message (spec.md §6.1): a
// magic identifier, the sending exchange's instance id, the moved
// byte region, and an optional caller-supplied routing tag.
type Envelope struct {
	Identifier uint32
	Instance   uint32
	Buffer     []byte
	SourceID   *int32
}

// Transport is the collaborator contract of spec.md §6.2. Any
// transport with these semantics — an in-process worker, a
// shared-memory ring with a signal channel, domain sockets with
// file-descriptor passing — may back a Buffer Exchange.
//
// Listen registers handler for incoming Envelopes and returns an
// unsubscribe function, standing in for
// addEventListener/removeEventListener (Go has no comparable function
// values to key a removeEventListener call on).
//
// PostMessage moves ownership of env.Buffer to the transport; the
// caller must not retain or mutate it afterward (spec.md §5).
//
// Pump gives transports that do not deliver asynchronously on their
// own event loop (like LoopbackTransport) a synchronous point to
// invoke pending listener callbacks. Transports that already deliver
// via their own goroutine or OS-level callback may implement it as a
// no-op returning 0.
type Transport interface {
	Listen(handler func(Envelope)) (unsubscribe func())
	PostMessage(env Envelope) error
	Pump() int
}

// loopbackPair holds both sides of a LoopbackTransport plus the
// shared queues in a single allocation, the way sess.endpointPair
// holds both Endpoints of a session pair.
type loopbackPair struct {
	a, b   LoopbackTransport
	closed atomix.Uint32
	ab     lfq.SPSC[Envelope]
	ba     lfq.SPSC[Envelope]
}

// LoopbackTransport is an in-process implementation of Transport
// backed by a bounded lock-free SPSC queue per direction (spec.md
// §6.5). It has no background goroutine: delivery to registered
// listeners only happens when Pump is called, preserving the
// single-execution-context-per-side model of spec.md §5.
type LoopbackTransport struct {
	send      *lfq.SPSC[Envelope]
	recv      *lfq.SPSC[Envelope]
	closed    *atomix.Uint32
	listeners []func(Envelope)
}

// NewLoopbackTransport creates a connected pair of loopback
// transports, one per side, each with its own send/recv queue pair
// (spec.md §6.5). capacity is the number of in-flight envelopes each
// direction's queue can hold before PostMessage backs off.
func NewLoopbackTransport(capacity int) (*LoopbackTransport, *LoopbackTransport) {
	pair := &loopbackPair{}
	pair.ab.Init(capacity)
	pair.ba.Init(capacity)

	pair.a = LoopbackTransport{send: &pair.ab, recv: &pair.ba, closed: &pair.closed}
	pair.b = LoopbackTransport{send: &pair.ba, recv: &pair.ab, closed: &pair.closed}
	return &pair.a, &pair.b
}

// Listen registers handler for delivery on the next Pump call.
func (t *LoopbackTransport) Listen(handler func(Envelope)) (unsubscribe func()) {
	t.listeners = append(t.listeners, handler)
	idx := len(t.listeners) - 1
	return func() {
		if idx < len(t.listeners) {
			t.listeners[idx] = nil
		}
	}
}

// PostMessage enqueues env for the peer side. The bounded queue can
// transiently be full; PostMessage retries under iox.Backoff exactly
// the way sess.dispatchWait retries a non-blocking DispatchSession
// call, so callers observe PostMessage as never failing under normal
// operation.
func (t *LoopbackTransport) PostMessage(env Envelope) error {
	var bo iox.Backoff
	for {
		if err := t.send.Enqueue(&env); err == nil {
			return nil
		}
		bo.Wait()
	}
}

// TryReceive is the non-blocking dequeue primitive Pump is built on.
// It returns iox.ErrWouldBlock when no envelope is currently queued,
// mirroring sess.Recv's non-blocking contract.
func (t *LoopbackTransport) TryReceive() (Envelope, error) {
	return t.recv.Dequeue()
}

// Pump drains every envelope currently queued and delivers each to
// every live (non-unsubscribed) listener, in arrival order. Returns
// the number of envelopes delivered.
func (t *LoopbackTransport) Pump() int {
	n := 0
	for {
		env, err := t.TryReceive()
		if err != nil {
			return n
		}
		for _, h := range t.listeners {
			if h != nil {
				h(env)
			}
		}
		n++
	}
}

// Closed reports whether either side has signaled Close (not used by
// the core Exchange, exposed for demo/test teardown bookkeeping).
func (t *LoopbackTransport) Closed() bool {
	return t.closed.Load() != 0
}

// Close signals this side's shutdown to its peer via the shared
// counter, the way sess.Close increments endpointPair.closed.
func (t *LoopbackTransport) Close() {
	t.closed.Add(1)
}
