// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex_test

import (
	"math"
	"testing"

	"code.hybscloud.com/bufex"
)

// endpointPair wires a Codec and an Exchange together for one side of
// a scenario, mirroring cmd/bufexdemo/main.go's setup shape.
type endpointPair struct {
	codec    *bufex.Codec
	exchange *bufex.Exchange
}

func newScenarioSide(t *testing.T, table bufex.Table, local string, transport bufex.Transport, n int) *endpointPair {
	t.Helper()
	compiled, err := bufex.SetupEndpoint(table, local)
	if err != nil {
		t.Fatalf("SetupEndpoint(%q): %v", local, err)
	}
	codec := bufex.NewCodec(compiled)
	exchange := bufex.NewExchange(transport, codec.RequiredBufferSize(), n)
	exchange.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := codec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("ReadBuffer: %v", err)
		}
		if err := buf.Release(); err != nil {
			t.Errorf("Release after ReadBuffer: %v", err)
		}
	})
	return &endpointPair{codec: codec, exchange: exchange}
}

// TestScenarioS1SimpleRound is spec.md §8's S1: 1000 add(12,11) calls
// dispatched into an accumulator, expecting 1000*23 = 23000.
func TestScenarioS1SimpleRound(t *testing.T) {
	skipRace(t)
	table := bufex.Table{{Name: "add", Args: []bufex.ArgKind{bufex.ArgInt, bufex.ArgInt}, Endpoint: "worker"}}
	ta, tb := bufex.NewLoopbackTransport(4)
	main := newScenarioSide(t, table, "main", ta, 2)

	compiled, err := bufex.SetupEndpoint(table, "worker")
	if err != nil {
		t.Fatal(err)
	}
	workerCodec := bufex.NewCodec(compiled)
	total := int32(0)
	workerCodec.Handle("add", func(_ any, args []bufex.Arg) {
		total += args[0].I + args[1].I
	})
	worker := bufex.NewExchange(tb, workerCodec.RequiredBufferSize(), 2)
	worker.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := workerCodec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("ReadBuffer: %v", err)
		}
		if err := buf.Release(); err != nil {
			t.Errorf("Release: %v", err)
		}
	})

	w := main.exchange.GetWriteBuffer()
	if w == nil {
		t.Fatal("GetWriteBuffer() = nil")
	}
	main.codec.WriteBuffer(w.Data())
	for i := 0; i < 1000; i++ {
		if err := main.codec.Call("add", bufex.IntArg(12), bufex.IntArg(11)); err != nil {
			t.Fatal(err)
		}
	}
	if err := main.exchange.Send(w); err != nil {
		t.Fatal(err)
	}
	tb.Pump()

	if total != 23000 {
		t.Fatalf("total = %d, want 23000", total)
	}
}

// TestScenarioS2MixedTypes is spec.md §8's S2.
func TestScenarioS2MixedTypes(t *testing.T) {
	skipRace(t)
	table := bufex.Table{
		{Name: "config", Args: []bufex.ArgKind{bufex.ArgStr, bufex.ArgInt, bufex.ArgFloat}, Endpoint: "worker"},
	}
	ta, tb := bufex.NewLoopbackTransport(4)

	mainCompiled, err := bufex.SetupEndpoint(table, "main")
	if err != nil {
		t.Fatal(err)
	}
	mainCodec := bufex.NewCodec(mainCompiled)
	main := bufex.NewExchange(ta, mainCodec.RequiredBufferSize(), 2)

	workerCompiled, err := bufex.SetupEndpoint(table, "worker")
	if err != nil {
		t.Fatal(err)
	}
	workerCodec := bufex.NewCodec(workerCompiled)
	var gotName string
	var gotN int32
	var gotF float32
	workerCodec.Handle("config", func(_ any, args []bufex.Arg) {
		gotName, gotN, gotF = args[0].S, args[1].I, args[2].F
	})
	worker := bufex.NewExchange(tb, workerCodec.RequiredBufferSize(), 2)
	worker.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := workerCodec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("ReadBuffer: %v", err)
		}
		_ = buf.Release()
	})

	w := main.GetWriteBuffer()
	mainCodec.WriteBuffer(w.Data())
	if err := mainCodec.Call("config", bufex.StrArg("hi"), bufex.IntArg(-7), bufex.FloatArg(1.5)); err != nil {
		t.Fatal(err)
	}
	if err := main.Send(w); err != nil {
		t.Fatal(err)
	}
	tb.Pump()

	if gotName != "hi" || gotN != -7 || math.Abs(float64(gotF-1.5)) > 1e-6 {
		t.Fatalf("got (%q, %d, %v), want (\"hi\", -7, ~1.5)", gotName, gotN, gotF)
	}
}

// entity is the S3 scenario's instance target.
type entity struct {
	ticks []int32
}

// TestScenarioS3InstanceDispatch is spec.md §8's S3.
func TestScenarioS3InstanceDispatch(t *testing.T) {
	skipRace(t)
	table := bufex.Table{
		{Name: "tick", Args: []bufex.ArgKind{bufex.ArgInt}, Instance: "ents", Endpoint: "worker"},
	}
	ta, tb := bufex.NewLoopbackTransport(4)

	mainCompiled, err := bufex.SetupEndpoint(table, "main")
	if err != nil {
		t.Fatal(err)
	}
	mainCodec := bufex.NewCodec(mainCompiled)
	main := bufex.NewExchange(ta, mainCodec.RequiredBufferSize(), 2)

	workerCompiled, err := bufex.SetupEndpoint(table, "worker")
	if err != nil {
		t.Fatal(err)
	}
	workerCodec := bufex.NewCodec(workerCompiled)
	e0, e1, e2 := &entity{}, &entity{}, &entity{}
	workerCodec.SetInstances("ents", bufex.InstanceList[*entity]{e0, e1, e2})
	workerCodec.HandleInstanced("ents", "tick", func(target any, args []bufex.Arg) {
		e := target.(*entity)
		e.ticks = append(e.ticks, args[0].I)
	})
	worker := bufex.NewExchange(tb, workerCodec.RequiredBufferSize(), 2)
	worker.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := workerCodec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("ReadBuffer: %v", err)
		}
		_ = buf.Release()
	})

	w := main.GetWriteBuffer()
	mainCodec.WriteBuffer(w.Data())
	if err := mainCodec.CallInstanced("ents", "tick", 0, bufex.IntArg(3)); err != nil {
		t.Fatal(err)
	}
	if err := mainCodec.CallInstanced("ents", "tick", 2, bufex.IntArg(5)); err != nil {
		t.Fatal(err)
	}
	if err := main.Send(w); err != nil {
		t.Fatal(err)
	}
	tb.Pump()

	if len(e0.ticks) != 1 || e0.ticks[0] != 3 {
		t.Fatalf("e0.ticks = %v, want [3]", e0.ticks)
	}
	if len(e1.ticks) != 0 {
		t.Fatalf("e1.ticks = %v, want []", e1.ticks)
	}
	if len(e2.ticks) != 1 || e2.ticks[0] != 5 {
		t.Fatalf("e2.ticks = %v, want [5]", e2.ticks)
	}
}

// TestScenarioS4SlotSaturation is spec.md §8's S4.
func TestScenarioS4SlotSaturation(t *testing.T) {
	skipRace(t)
	ta, _ := bufex.NewLoopbackTransport(4)
	e := bufex.NewExchange(ta, 16, 2)

	first := e.GetWriteBuffer()
	second := e.GetWriteBuffer()
	third := e.GetWriteBuffer()
	if first == nil || second == nil {
		t.Fatal("first two GetWriteBuffer() calls should return non-nil")
	}
	if third != nil {
		t.Fatal("third GetWriteBuffer() call should return nil (no free slot)")
	}
}

// TestScenarioS5InterleavedSendReceive is spec.md §8's S5: 100 rounds
// of ping-pong where each side echoes the received call count, ending
// with numSlotsAvailable == N on both sides.
func TestScenarioS5InterleavedSendReceive(t *testing.T) {
	skipRace(t)
	table := bufex.Table{
		{Name: "ping", Args: []bufex.ArgKind{bufex.ArgInt}, Endpoint: "worker"},
		{Name: "pong", Args: []bufex.ArgKind{bufex.ArgInt}, Endpoint: "main"},
	}
	ta, tb := bufex.NewLoopbackTransport(8)
	const n = 2

	mainCompiled, err := bufex.SetupEndpoint(table, "main")
	if err != nil {
		t.Fatal(err)
	}
	mainCodec := bufex.NewCodec(mainCompiled)
	mainReceived := 0
	mainCodec.Handle("pong", func(any, []bufex.Arg) { mainReceived++ })
	main := bufex.NewExchange(ta, mainCodec.RequiredBufferSize(), n)
	main.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := mainCodec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("main ReadBuffer: %v", err)
		}
		_ = buf.Release()
	})

	workerCompiled, err := bufex.SetupEndpoint(table, "worker")
	if err != nil {
		t.Fatal(err)
	}
	workerCodec := bufex.NewCodec(workerCompiled)
	workerReceived := 0
	var worker *bufex.Exchange
	workerCodec.Handle("ping", func(any, []bufex.Arg) {
		workerReceived++
		w := worker.GetWriteBuffer()
		if w == nil {
			t.Fatal("worker.GetWriteBuffer() = nil mid-round")
		}
		workerCodec.WriteBuffer(w.Data())
		if err := workerCodec.Call("pong", bufex.IntArg(1)); err != nil {
			t.Fatal(err)
		}
		if err := worker.Send(w); err != nil {
			t.Fatal(err)
		}
	})
	worker = bufex.NewExchange(tb, workerCodec.RequiredBufferSize(), n)
	worker.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := workerCodec.ReadBuffer(buf.Data()); err != nil {
			t.Errorf("worker ReadBuffer: %v", err)
		}
		_ = buf.Release()
	})

	for i := 0; i < 100; i++ {
		w := main.GetWriteBuffer()
		if w == nil {
			t.Fatalf("round %d: main.GetWriteBuffer() = nil", i)
		}
		mainCodec.WriteBuffer(w.Data())
		if err := mainCodec.Call("ping", bufex.IntArg(1)); err != nil {
			t.Fatal(err)
		}
		if err := main.Send(w); err != nil {
			t.Fatal(err)
		}
		tb.Pump()
		ta.Pump()
	}

	if mainReceived != 100 || workerReceived != 100 {
		t.Fatalf("mainReceived=%d workerReceived=%d, want 100/100", mainReceived, workerReceived)
	}
	if main.NumSlotsAvailable() != n || worker.NumSlotsAvailable() != n {
		t.Fatalf("NumSlotsAvailable main=%d worker=%d, want %d/%d", main.NumSlotsAvailable(), worker.NumSlotsAvailable(), n, n)
	}
}

// TestScenarioS6RejectedForeignMessage is spec.md §8's S6.
func TestScenarioS6RejectedForeignMessage(t *testing.T) {
	skipRace(t)
	ta, tb := bufex.NewLoopbackTransport(4)
	e := bufex.NewExchange(tb, 16, 2)

	fired := 0
	e.OnData(func(*bufex.Buffer, *int32) { fired++ })
	before := e.NumSlotsAvailable()

	if err := ta.PostMessage(bufex.Envelope{Identifier: 0xDEADBEEF, Buffer: make([]byte, 16)}); err != nil {
		t.Fatal(err)
	}
	tb.Pump()

	if fired != 0 {
		t.Fatalf("onData fired %d times, want 0", fired)
	}
	if e.NumSlotsAvailable() != before {
		t.Fatalf("NumSlotsAvailable changed from %d to %d after a rejected message", before, e.NumSlotsAvailable())
	}
}
