// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufex

import "fmt"

// ArgKind is the kind of one procedure parameter (spec.md §3.3).
// Only three kinds are supported; this is a deliberate non-goal
// boundary, not an oversight (spec.md §1 Non-goals).
type ArgKind int

const (
	// ArgInt is a 32-bit signed integer argument.
	ArgInt ArgKind = iota
	// ArgFloat is a 32-bit float argument.
	ArgFloat
	// ArgStr is a length-prefixed sequence of 32-bit code units.
	ArgStr
)

func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgStr:
		return "str"
	default:
		return "ArgKind(?)"
	}
}

// ProcEntry describes one callable procedure (spec.md §3.3).
//
// Endpoint is required: it names the endpoint that receives (and
// executes) the procedure; the opposite endpoint encodes it. The
// source system's fallback for an absent Endpoint ("no conflicting
// method already exists on the codec instance") is a scripting
// language runtime-method-presence check with no static-typing
// analogue and is resolved rather than ported — see DESIGN.md.
type ProcEntry struct {
	Name     string
	Args     []ArgKind
	Instance string // empty means not instanced
	Endpoint string // required
}

// Instanced reports whether this procedure carries an instance id.
func (e ProcEntry) Instanced() bool {
	return e.Instance != ""
}

// wireKey is the key writer closures are looked up by on the send
// side: "instance$name" when instanced, else "name" (spec.md §4.3).
func (e ProcEntry) wireKey() string {
	if e.Instanced() {
		return e.Instance + "$" + e.Name
	}
	return e.Name
}

// Table is an ordered procedure table (spec.md §3.3). Procedure id is
// the entry's 1-based index; id 0 is reserved for the batch's
// call-count cell.
type Table []ProcEntry

// Validate checks the table-level invariants of spec.md §3.3: every
// entry names a non-empty Endpoint, and no name repeats within the
// same (Instance, Endpoint) pair. It does not (and cannot, from one
// side alone) check that both sides hold an identical table — that
// invariant is the caller's deployment responsibility (spec.md §3.3:
// "mismatch produces undefined dispatch").
func (t Table) Validate() error {
	type key struct {
		instance, endpoint, name string
	}
	seen := make(map[key]bool, len(t))
	for i, e := range t {
		if e.Name == "" {
			return fmt.Errorf("bufex: table entry %d has empty name", i)
		}
		if e.Endpoint == "" {
			return fmt.Errorf("bufex: table entry %q has no endpoint", e.Name)
		}
		k := key{e.Instance, e.Endpoint, e.Name}
		if seen[k] {
			return fmt.Errorf("bufex: duplicate procedure %q for instance %q endpoint %q", e.Name, e.Instance, e.Endpoint)
		}
		seen[k] = true
	}
	return nil
}
