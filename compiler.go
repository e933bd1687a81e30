// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

// compiledProc is the per-procedure vtable entry (spec.md §9 Design
// Notes, option 1): the entry itself (its ArgKind tags) plus the
// numeric id assigned by table position. The generic writer/reader in
// codec.go iterates entry.Args at call time; there is no closure
// generated per procedure, only this small struct.
type compiledProc struct {
	entry ProcEntry
	id    int32
}

// CompiledTable is the output of SetupEndpoint (spec.md §4.3): the
// table split into a write-side vtable (procedures this endpoint
// sends, keyed by wire key) and a read-side vtable (procedures this
// endpoint receives, indexed by numeric id).
type CompiledTable struct {
	table  Table
	local  string
	serial TableSerial

	writers map[string]*compiledProc
	readers []*compiledProc // index 0 unused; index i holds procedure id i
}

// SetupEndpoint validates table and compiles it for localEndpoint
// (spec.md §6.3). It is called once per (table, endpoint) pair, and
// its result is what NewCodec takes.
func SetupEndpoint(table Table, localEndpoint string) (*CompiledTable, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	ct := &CompiledTable{
		table:   table,
		local:   localEndpoint,
		serial:  nextTableSerial(),
		writers: make(map[string]*compiledProc, len(table)),
		readers: make([]*compiledProc, len(table)+1),
	}
	for i, entry := range table {
		cp := &compiledProc{entry: entry, id: int32(i + 1)}
		if entry.Endpoint == localEndpoint {
			ct.readers[cp.id] = cp
		} else {
			ct.writers[entry.wireKey()] = cp
		}
	}
	return ct, nil
}

// Serial returns the debug-visible serial assigned to this compiled
// table, for disambiguating multiple compiled tables in logs.
func (ct *CompiledTable) Serial() TableSerial {
	return ct.serial
}

// LocalEndpoint returns the endpoint name this table was compiled for.
func (ct *CompiledTable) LocalEndpoint() string {
	return ct.local
}
