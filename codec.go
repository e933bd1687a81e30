// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import (
	"fmt"
	"unsafe"
)

// defaultChannelSize is the default codec channel capacity in 32-bit
// cells (spec.md §6.3).
const defaultChannelSize = 32 * 1024

// Arg is a boxed procedure argument tagged with its ArgKind. Only the
// field matching Kind is meaningful. This is the "boxed call handler"
// argument vocabulary from spec.md §9 Design Notes: a small tagged
// value instead of an `any` per argument, avoiding interface boxing
// for the two numeric kinds.
type Arg struct {
	Kind ArgKind
	I    int32
	F    float32
	S    string
}

// IntArg builds an ArgInt argument.
func IntArg(v int32) Arg { return Arg{Kind: ArgInt, I: v} }

// FloatArg builds an ArgFloat argument.
func FloatArg(v float32) Arg { return Arg{Kind: ArgFloat, F: v} }

// StrArg builds an ArgStr argument.
func StrArg(v string) Arg { return Arg{Kind: ArgStr, S: v} }

// Handler is invoked on the receive side once a call's arguments have
// been fully decoded. target is either the Codec itself (default),
// an explicitly configured target (Codec.SetTarget), or an instance
// resolved from an InstanceRegistry — the three dispatch branches of
// spec.md §4.3's Wrapper Glue.
type Handler func(target any, args []Arg)

// InstanceRegistry resolves an instanced procedure's dispatch target
// from its wire-encoded instance id (spec.md §4.3, §4.4).
type InstanceRegistry interface {
	Instance(id int32) (any, bool)
}

// InstanceList adapts a plain slice of instance targets into an
// InstanceRegistry addressed by 0-based instance id, matching the
// S3 scenario's `codec.ents = [E0, E1, E2]`.
type InstanceList[T any] []T

// Instance implements InstanceRegistry.
func (l InstanceList[T]) Instance(id int32) (any, bool) {
	if id < 0 || int(id) >= len(l) {
		return nil, false
	}
	return l[id], true
}

// Codec is the Batch Codec runtime (spec.md §4.4): a compiled table
// plus a pair of buffer views — one bound as the write target, one as
// the read target — and the write/read cursors into them.
type Codec struct {
	compiled    *CompiledTable
	channelSize int

	iWrite   []int32
	fWrite   []float32
	writePos int

	iRead    []int32
	fRead    []float32
	readPos  int

	handlers  map[string]Handler
	instances map[string]InstanceRegistry
	target    any
}

// CodecOption configures a Codec at construction.
type CodecOption func(*Codec)

// WithChannelSize overrides the default channel capacity (in 32-bit
// cells, spec.md §6.3) used by RequiredBufferSize.
func WithChannelSize(cells int) CodecOption {
	return func(c *Codec) { c.channelSize = cells }
}

// NewCodec constructs a Codec bound to compiled. compiled must come
// from a successful SetupEndpoint call; a nil compiled table is a
// programmer error (spec.md §7 SetupMissing) and panics, the way
// sess panics on "unhandled effect" rather than returning an error
// for a condition that indicates a broken call site, not a runtime
// condition a caller can recover from.
func NewCodec(compiled *CompiledTable, opts ...CodecOption) *Codec {
	if compiled == nil {
		panic(ErrSetupMissing)
	}
	c := &Codec{
		compiled:    compiled,
		channelSize: defaultChannelSize,
		handlers:    make(map[string]Handler),
		instances:   make(map[string]InstanceRegistry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequiredBufferSize is the byte size a region must have to serve as
// either buffer of this codec (spec.md §4.4).
func (c *Codec) RequiredBufferSize() int {
	return c.channelSize * 4
}

// SetTarget configures the dispatch target for non-instanced
// procedures (spec.md §4.3's "direct mode" branch). Without a call to
// SetTarget, the target defaults to the Codec itself — the "wrapper
// method present on codec" branch.
func (c *Codec) SetTarget(target any) {
	c.target = target
}

// Handle registers the handler for a non-instanced procedure by name.
func (c *Codec) Handle(name string, h Handler) {
	c.handlers[name] = h
}

// HandleInstanced registers the handler for an instanced procedure by
// (instance, name).
func (c *Codec) HandleInstanced(instance, name string, h Handler) {
	c.handlers[instance+"$"+name] = h
}

// SetInstances registers the InstanceRegistry backing instance for
// dispatch, e.g. SetInstances("ents", bufex.InstanceList[*Entity]{e0, e1, e2}).
func (c *Codec) SetInstances(instance string, reg InstanceRegistry) {
	c.instances[instance] = reg
}

// WriteBuffer binds region as the write target (spec.md §4.4):
// iWriteArray/fWriteArray alias region's bytes directly (no copy),
// writePos resets to 1, and the call-count cell is cleared.
func (c *Codec) WriteBuffer(region []byte) {
	c.iWrite = viewInt32(region)
	c.fWrite = viewFloat32(region)
	c.writePos = 1
	if len(c.iWrite) > 0 {
		c.iWrite[0] = 0
	}
}

// ReadBuffer binds region as the read target and dispatches every
// encoded call in order (spec.md §4.4, §5 ordering guarantee). After
// a full drain the call-count cell is cleared.
func (c *Codec) ReadBuffer(region []byte) error {
	c.iRead = viewInt32(region)
	c.fRead = viewFloat32(region)
	c.readPos = 1

	n := c.iRead[0]
	for i := int32(0); i < n; i++ {
		id := c.iRead[c.readPos]
		c.readPos++
		proc := c.readerFor(id)
		if proc == nil {
			return fmt.Errorf("bufex: no reader compiled for procedure id %d", id)
		}
		if err := c.dispatchRead(proc); err != nil {
			return err
		}
	}
	c.iRead[0] = 0
	return nil
}

func (c *Codec) readerFor(id int32) *compiledProc {
	if id < 0 || int(id) >= len(c.compiled.readers) {
		return nil
	}
	return c.compiled.readers[id]
}

// InputLength returns the call count of the currently bound read
// buffer's call-count cell.
func (c *Codec) InputLength() int32 {
	if len(c.iRead) == 0 {
		return 0
	}
	return c.iRead[0]
}

// OutputLength returns the call count of the currently bound write
// buffer's call-count cell.
func (c *Codec) OutputLength() int32 {
	if len(c.iWrite) == 0 {
		return 0
	}
	return c.iWrite[0]
}

// Call encodes a non-instanced procedure call into the bound write
// buffer (spec.md §4.3's writer closure, realized as one generic
// call-by-name method — the Wrapper Glue equivalent of a synthesized
// per-procedure method).
func (c *Codec) Call(name string, args ...Arg) error {
	proc, ok := c.compiled.writers[name]
	if !ok {
		return fmt.Errorf("bufex: no writer compiled for procedure %q", name)
	}
	if proc.entry.Instanced() {
		return fmt.Errorf("bufex: procedure %q is instanced, use CallInstanced", name)
	}
	return c.writeCall(proc, 0, args)
}

// CallInstanced encodes an instanced procedure call into the bound
// write buffer.
func (c *Codec) CallInstanced(instance, name string, instanceID int32, args ...Arg) error {
	proc, ok := c.compiled.writers[instance+"$"+name]
	if !ok {
		return fmt.Errorf("bufex: no writer compiled for procedure %q on instance %q", name, instance)
	}
	return c.writeCall(proc, instanceID, args)
}

// writeCall lays down one call record per the wire layout of spec.md
// §3.4: procedure id, then STR args in declaration order, then the
// instance id if applicable, then non-STR args in declaration order.
func (c *Codec) writeCall(proc *compiledProc, instanceID int32, args []Arg) error {
	if len(args) != len(proc.entry.Args) {
		return fmt.Errorf("bufex: procedure %q expects %d args, got %d", proc.entry.Name, len(proc.entry.Args), len(args))
	}
	for i, k := range proc.entry.Args {
		if args[i].Kind != k {
			return fmt.Errorf("bufex: procedure %q arg %d: expected %s, got %s", proc.entry.Name, i, k, args[i].Kind)
		}
	}

	c.iWrite[c.writePos] = proc.id
	c.writePos++

	for i, k := range proc.entry.Args {
		if k == ArgStr {
			c.writePos = c.writeString(c.writePos, args[i].S)
		}
	}
	if proc.entry.Instanced() {
		c.iWrite[c.writePos] = instanceID
		c.writePos++
	}
	for i, k := range proc.entry.Args {
		switch k {
		case ArgInt:
			c.iWrite[c.writePos] = args[i].I
			c.writePos++
		case ArgFloat:
			c.fWrite[c.writePos] = args[i].F
			c.writePos++
		}
	}
	c.iWrite[0]++
	return nil
}

// dispatchRead decodes one call's arguments in wire order and
// dispatches to the resolved target (spec.md §4.3's reader closure).
func (c *Codec) dispatchRead(proc *compiledProc) error {
	args := make([]Arg, len(proc.entry.Args))
	for i, k := range proc.entry.Args {
		if k == ArgStr {
			args[i] = Arg{Kind: ArgStr, S: c.readString()}
		}
	}
	var instanceID int32
	if proc.entry.Instanced() {
		instanceID = c.iRead[c.readPos]
		c.readPos++
	}
	for i, k := range proc.entry.Args {
		switch k {
		case ArgInt:
			args[i] = Arg{Kind: ArgInt, I: c.iRead[c.readPos]}
			c.readPos++
		case ArgFloat:
			args[i] = Arg{Kind: ArgFloat, F: c.fRead[c.readPos]}
			c.readPos++
		}
	}

	if proc.entry.Instanced() {
		reg, ok := c.instances[proc.entry.Instance]
		if !ok {
			return fmt.Errorf("bufex: no instance registry for %q", proc.entry.Instance)
		}
		target, ok := reg.Instance(instanceID)
		if !ok {
			return fmt.Errorf("bufex: no instance %d in registry %q", instanceID, proc.entry.Instance)
		}
		h, ok := c.handlers[proc.entry.wireKey()]
		if !ok {
			return fmt.Errorf("bufex: no handler registered for %q", proc.entry.wireKey())
		}
		h(target, args)
		return nil
	}

	h, ok := c.handlers[proc.entry.Name]
	if !ok {
		return fmt.Errorf("bufex: no handler registered for %q", proc.entry.Name)
	}
	target := c.target
	if target == nil {
		target = c
	}
	h(target, args)
	return nil
}

// writeString writes s as a length-prefixed sequence of 32-bit code
// units starting at pos and returns the new cursor (spec.md §4.5).
// One rune per cell — space-inefficient but uniform across all
// argument types.
func (c *Codec) writeString(pos int, s string) int {
	runes := []rune(s)
	c.iWrite[pos] = int32(len(runes))
	pos++
	for _, r := range runes {
		c.iWrite[pos] = int32(r)
		pos++
	}
	return pos
}

// readString reads a length-prefixed code unit sequence starting at
// readPos, advances readPos past it, and returns the assembled string
// (spec.md §4.5).
func (c *Codec) readString() string {
	length := int(c.iRead[c.readPos])
	c.readPos++
	runes := make([]rune, length)
	for i := range runes {
		runes[i] = rune(c.iRead[c.readPos])
		c.readPos++
	}
	return string(runes)
}

// viewInt32 reinterprets region's bytes as a []int32 sharing the same
// backing array (spec.md §3.4: "interpreted in parallel as an array
// of 32-bit signed integers and 32-bit floats sharing the same
// backing bytes"). Zero-copy: no bytes are read or moved.
func viewInt32(region []byte) []int32 {
	if len(region) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&region[0])), len(region)/4)
}

// viewFloat32 reinterprets region's bytes as a []float32 sharing the
// same backing array as viewInt32's view of the same region.
func viewFloat32(region []byte) []float32 {
	if len(region) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&region[0])), len(region)/4)
}
