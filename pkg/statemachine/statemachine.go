package statemachine

import (
	"fmt"
	"maps"
	"slices"
)

// Transition declares that Event moves a machine from From to To.
type Transition[S, E comparable] struct {
	From  S
	Event E
	To    S
}

// Table is an immutable transition table. It carries no current state, so one
// Table can be shared by any number of goroutines evaluating different entities.
type Table[S, E comparable] struct {
	next map[S]map[E]S
}

// NewTable builds a table from transition definitions. Declaring the same
// (From, Event) pair twice with different targets is an error.
func NewTable[S, E comparable](defs ...Transition[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{next: make(map[S]map[E]S, len(defs))}
	for _, d := range defs {
		byEvent, ok := t.next[d.From]
		if !ok {
			byEvent = make(map[E]S)
			t.next[d.From] = byEvent
		}
		if to, exists := byEvent[d.Event]; exists && to != d.To {
			return nil, fmt.Errorf("%w: %v --%v--> %v and %v", ErrConflictingTransition, d.From, d.Event, to, d.To)
		}
		byEvent[d.Event] = d.To
	}
	return t, nil
}

// MustNewTable is NewTable for package-level tables.
func MustNewTable[S, E comparable](defs ...Transition[S, E]) *Table[S, E] {
	t, err := NewTable(defs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Next returns the state reached from `from` on event ev.
func (t *Table[S, E]) Next(from S, ev E) (S, error) {
	if to, ok := t.next[from][ev]; ok {
		return to, nil
	}
	var zero S
	return zero, &NoTransitionError[S, E]{From: from, Event: ev}
}

// Can reports whether ev is accepted in state from.
func (t *Table[S, E]) Can(from S, ev E) bool {
	_, ok := t.next[from][ev]
	return ok
}

// Terminal reports whether no event leaves state s.
func (t *Table[S, E]) Terminal(s S) bool {
	return len(t.next[s]) == 0
}

// Events lists events accepted in state from, in no particular order.
func (t *Table[S, E]) Events(from S) []E {
	return slices.Collect(maps.Keys(t.next[from]))
}
