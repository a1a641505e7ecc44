// Package statemachine provides an immutable, generic transition table.
//
// Unlike a stateful machine, a Table only answers "where does event E lead
// from state S"; the caller owns and persists the current state. This keeps
// transition logic pure and safe to share.
//
//	var table = statemachine.MustNewTable(
//		statemachine.Transition[Status, Event]{From: Active, Event: PaymentFailed, To: PastDue},
//		statemachine.Transition[Status, Event]{From: PastDue, Event: PaymentSucceeded, To: Active},
//	)
//
//	next, err := table.Next(current, PaymentFailed)
//	if errors.Is(err, statemachine.ErrNoTransition) { ... }
package statemachine
