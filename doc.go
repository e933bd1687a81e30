// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bufex provides the core of a zero-copy inter-worker RPC
// system: two cooperating sides exchange fixed-size binary buffers by
// ownership transfer and use those buffers to carry batches of
// encoded procedure calls.
//
// # Architecture
//
//   - Buffer: a fixed-size byte region with a five-state ownership
//     lifecycle ([NotAvailable], [Received], [Available], [Reserved],
//     [Outgoing]).
//   - Exchange: a pool of 2N Buffers per side, an outbound send path
//     with flow control, and an inbound receive path with slot
//     accounting. [NewExchange] pairs one side with a [Transport].
//   - Table / SetupEndpoint: a declarative [Table] of [ProcEntry]
//     values compiles, per endpoint, into a [CompiledTable] holding a
//     write-side vtable (procedures this endpoint sends) and a
//     read-side vtable (procedures this endpoint receives).
//   - Codec: the runtime that binds a [CompiledTable] to a pair of
//     buffer regions and streams calls through them — [Codec.Call] /
//     [Codec.CallInstanced] to encode, [Codec.ReadBuffer] to decode
//     and dispatch every call in one pass.
//
// # Execution model
//
// Every operation in this package is synchronous: there are no
// suspension points. The only asynchrony is the arrival of a
// transport message, delivered to [Exchange.Poll] (or its blocking
// convenience wrapper [Exchange.PumpUntil]) from whichever goroutine
// owns that side. An Exchange has no internal lock; it assumes its
// owner does not share it across preemptive threads.
//
// # Example
//
//	table := bufex.Table{{Name: "add", Args: []bufex.ArgKind{bufex.ArgInt, bufex.ArgInt}, Endpoint: "worker"}}
//	mainCompiled, _ := bufex.SetupEndpoint(table, "main")
//	mainCodec := bufex.NewCodec(mainCompiled)
//
//	mainTransport, workerTransport := bufex.NewLoopbackTransport(4)
//	mainExchange := bufex.NewExchange(mainTransport, 1024, 2)
//
//	buf := mainExchange.GetWriteBuffer()
//	mainCodec.WriteBuffer(buf.Data())
//	_ = mainCodec.Call("add", bufex.IntArg(12), bufex.IntArg(11))
//	mainExchange.Send(buf)
//
// See exchange_test.go and scenarios_test.go for full round trips
// including the worker side and dispatch.
package bufex
