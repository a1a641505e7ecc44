package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition          = errors.New("no transition available")
	ErrConflictingTransition = errors.New("conflicting transition")
)

// NoTransitionError is returned by Table.Next for an event the state does not accept.
type NoTransitionError[S, E comparable] struct {
	From  S
	Event E
}

func (e *NoTransitionError[S, E]) Error() string {
	return fmt.Sprintf("no transition from %v on %v", e.From, e.Event)
}

func (e *NoTransitionError[S, E]) Unwrap() error { return ErrNoTransition }
