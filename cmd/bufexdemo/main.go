// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command bufexdemo runs a single "main" + "worker" round trip over a
// bufex.LoopbackTransport, invoking one procedure 1,000 times and
// confirming the worker accumulated the expected total. It exists to
// exercise the module end to end outside of the test suite; it is not
// part of the public API.
package main

import (
	"log"

	"code.hybscloud.com/bufex"
)

func main() {
	table := bufex.Table{
		{Name: "add", Args: []bufex.ArgKind{bufex.ArgInt, bufex.ArgInt}, Endpoint: "worker"},
	}

	mainCompiled, err := bufex.SetupEndpoint(table, "main")
	if err != nil {
		log.Fatalf("bufexdemo: setup main endpoint: %v", err)
	}
	workerCompiled, err := bufex.SetupEndpoint(table, "worker")
	if err != nil {
		log.Fatalf("bufexdemo: setup worker endpoint: %v", err)
	}

	mainCodec := bufex.NewCodec(mainCompiled)
	workerCodec := bufex.NewCodec(workerCompiled)

	mainTransport, workerTransport := bufex.NewLoopbackTransport(4)
	mainExchange := bufex.NewExchange(mainTransport, mainCodec.RequiredBufferSize(), 2)
	workerExchange := bufex.NewExchange(workerTransport, workerCodec.RequiredBufferSize(), 2)

	var total int64
	workerCodec.Handle("add", func(_ any, args []bufex.Arg) {
		total += int64(args[0].I) + int64(args[1].I)
	})

	workerExchange.OnData(func(buf *bufex.Buffer, _ *int32) {
		if err := workerCodec.ReadBuffer(buf.Data()); err != nil {
			log.Fatalf("bufexdemo: worker read buffer: %v", err)
		}
		if err := buf.Release(); err != nil {
			log.Fatalf("bufexdemo: worker release buffer: %v", err)
		}
	})

	log.Print("bufexdemo: starting")

	buf := mainExchange.GetWriteBuffer()
	if buf == nil {
		log.Fatal("bufexdemo: no write buffer available")
	}
	mainCodec.WriteBuffer(buf.Data())
	for i := 0; i < 1000; i++ {
		if err := mainCodec.Call("add", bufex.IntArg(12), bufex.IntArg(11)); err != nil {
			log.Fatalf("bufexdemo: encode call %d: %v", i, err)
		}
	}
	if err := mainExchange.Send(buf); err != nil {
		log.Fatalf("bufexdemo: send buffer: %v", err)
	}

	workerExchange.PumpUntil()

	if total != 1000*23 {
		log.Fatalf("bufexdemo: worker accumulated %d, want %d", total, 1000*23)
	}
	log.Printf("bufexdemo: worker accumulated %d as expected, stopping", total)
}
