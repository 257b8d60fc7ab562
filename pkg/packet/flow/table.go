// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/btree"
)

// Flags describe the verification state of a flow.
type Flags uint8

// Flow flags.
const (
	FlagReset Flags = 1 << iota
	FlagClosed
	FlagLeftVerified
	FlagRightVerified
	FlagLeftFin
	FlagRightFin
)

var flagNames = []string{"reset", "closed", "leftVerified", "rightVerified", "leftFin", "rightFin"}

// String implements fmt.Stringer.
func (f Flags) String() string {
	var names []string
	for i, n := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}

// Entry is the state kept for one flow.
type Entry struct {
	Tuple FourTuple

	// Diff is the sequence number offset between the two halves of a
	// proxied connection.
	Diff  uint32
	Flags Flags
}

// degree is the B-tree degree of a table.
const degree = 16

func lessEntry(a, b Entry) bool {
	return a.Tuple.Compare(b.Tuple) < 0
}

// Table is an ordered set of flows. Entries live in a current generation and
// an old one; Rotate discards the old generation and ages the current one, so
// flows not touched for two rotations are forgotten.
//
// Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	current *btree.BTreeG[Entry]
	old     *btree.BTreeG[Entry]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		current: btree.NewG(degree, lessEntry),
		old:     btree.NewG(degree, lessEntry),
	}
}

// getLocked finds t in either generation. Precondition: mu is held.
func (tb *Table) getLocked(t FourTuple) (Entry, bool) {
	key := Entry{Tuple: t}
	if e, ok := tb.current.Get(key); ok {
		return e, true
	}
	return tb.old.Get(key)
}

// Insert adds e unless an entry for e.Tuple exists. It returns the entry
// stored for the tuple and whether e was inserted.
func (tb *Table) Insert(e Entry) (Entry, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if cur, ok := tb.getLocked(e.Tuple); ok {
		return cur, false
	}
	tb.current.ReplaceOrInsert(e)
	return e, true
}

// Lookup returns the entry for t.
func (tb *Table) Lookup(t FourTuple) (Entry, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.getLocked(t)
}

// Update applies fn to the entry for t and stores the result in the current
// generation. It reports whether the entry existed.
func (tb *Table) Update(t FourTuple, fn func(*Entry)) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	e, ok := tb.getLocked(t)
	if !ok {
		return false
	}
	tb.old.Delete(e)
	fn(&e)
	e.Tuple = t
	tb.current.ReplaceOrInsert(e)
	return true
}

// Delete removes the entry for t from both generations and returns it.
func (tb *Table) Delete(t FourTuple) (Entry, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	key := Entry{Tuple: t}
	e, ok := tb.current.Delete(key)
	if o, oldOK := tb.old.Delete(key); oldOK && !ok {
		e, ok = o, true
	}
	return e, ok
}

// Len returns the number of flows.
func (tb *Table) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.current.Len() + tb.old.Len()
}

// Rotate discards the old generation and makes the current one old.
func (tb *Table) Rotate() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.old = tb.current
	tb.current = btree.NewG(degree, lessEntry)
}

// Ascend calls fn for every flow in tuple order until fn returns false. fn
// must not modify the table.
func (tb *Table) Ascend(fn func(Entry) bool) {
	tb.mu.RLock()
	all := make([]Entry, 0, tb.current.Len()+tb.old.Len())
	collect := func(e Entry) bool {
		all = append(all, e)
		return true
	}
	tb.current.Ascend(collect)
	tb.old.Ascend(collect)
	tb.mu.RUnlock()
	slices.SortFunc(all, func(a, b Entry) int {
		return a.Tuple.Compare(b.Tuple)
	})
	for _, e := range all {
		if !fn(e) {
			return
		}
	}
}
