package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/viewportly/pkg/statemachine"
)

type transition = statemachine.Transition[Status, EventType]

// lifecycle lists the status changes webhook events may cause. Events absent
// for a status are accepted as no-ops. canceled accepts nothing.
var lifecycle = statemachine.MustNewTable(
	transition{From: StatusNone, Event: EventCheckoutCompleted, To: StatusActive},

	transition{From: StatusTrialing, Event: EventInvoicePaymentFailed, To: StatusPastDue},
	transition{From: StatusActive, Event: EventInvoicePaymentFailed, To: StatusPastDue},
	transition{From: StatusPastDue, Event: EventInvoicePaymentSucceeded, To: StatusActive},

	transition{From: StatusTrialing, Event: EventSubscriptionUpdated, To: StatusTrialing},
	transition{From: StatusActive, Event: EventSubscriptionUpdated, To: StatusActive},
	transition{From: StatusPastDue, Event: EventSubscriptionUpdated, To: StatusPastDue},

	transition{From: StatusTrialing, Event: EventSubscriptionDeleted, To: StatusCanceled},
	transition{From: StatusActive, Event: EventSubscriptionDeleted, To: StatusCanceled},
	transition{From: StatusPastDue, Event: EventSubscriptionDeleted, To: StatusCanceled},
)

// Result is the output of one transition.
type Result struct {
	Mutation Mutation
	Intents  []Intent
	Outcome  Outcome
	Reason   string
}

// Machine computes subscription transitions. It performs no I/O; the clock
// and id generator are injected so results are deterministic under test.
type Machine struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// MachineOption configures a Machine instance.
type MachineOption func(*Machine)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator sets the generator for new subscription IDs.
func WithIDGenerator(fn func() uuid.UUID) MachineOption {
	return func(m *Machine) { m.newID = fn }
}

// NewMachine creates a Machine.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition applies ev to st. Events that reference entities missing from
// st return an error wrapping ErrOrphanEvent.
func (m *Machine) Transition(st State, ev *Event, ch *Change) (Result, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return m.checkoutCompleted(st, ev, ch)
	case EventInvoicePaymentFailed:
		return m.paymentFailed(st, ev)
	case EventInvoicePaymentSucceeded:
		return m.paymentSucceeded(st, ev)
	case EventSubscriptionUpdated:
		return m.subscriptionUpdated(st, ev, ch)
	case EventSubscriptionDeleted:
		return m.subscriptionDeleted(st, ev)
	default:
		return Result{Outcome: OutcomeIgnored, Reason: "unhandled event type"}, nil
	}
}

func (m *Machine) checkoutCompleted(st State, ev *Event, ch *Change) (Result, error) {
	if ch.SubscriptionID == "" {
		return Result{}, orphan("checkout without subscription id")
	}
	if st.User == nil {
		return Result{}, orphan("no user for checkout of %s", ch.SubscriptionID)
	}
	if st.Subscription != nil {
		return noop("subscription already recorded"), nil
	}
	if !ch.Tier.Valid() || ch.Tier == TierFree {
		return Result{Outcome: OutcomeRejected, Reason: "checkout for unknown plan"}, nil
	}

	now := m.now()
	var mut Mutation

	if cur := st.Current; cur != nil {
		if ch.Tier.Rank() <= cur.Tier.Rank() {
			return Result{Outcome: OutcomeRejected, Reason: "user already holds an equal or higher plan"}, nil
		}
		superseded := *cur
		superseded.Status = StatusCanceled
		superseded.UpdatedAt = now
		mut.Subscriptions = append(mut.Subscriptions, superseded)
	}

	status, err := lifecycle.Next(StatusNone, ev.Type)
	if err != nil {
		return Result{}, err
	}
	if ch.Status == StatusTrialing {
		status = StatusTrialing
	}

	start := firstNonZero(ch.PeriodStart, ev.OccurredAt, now)
	end := ch.PeriodEnd
	if end.IsZero() || !end.After(start) {
		end = start.AddDate(0, 1, 0)
	}

	sub := Subscription{
		ID:          m.newID(),
		UserID:      st.User.ID,
		ExternalID:  ch.SubscriptionID,
		CustomerID:  ch.CustomerID,
		PriceID:     ch.PriceID,
		Tier:        ch.Tier,
		Status:      status,
		PeriodStart: start,
		PeriodEnd:   end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	mut.Subscriptions = append(mut.Subscriptions, sub)

	user := *st.User
	user.Tier = ch.Tier
	if ch.CustomerID != "" {
		user.CustomerID = ch.CustomerID
	}
	user.UpdatedAt = now
	mut.User = &user

	in := newIntent(IntentSubscriptionActivated, &user)
	in.PeriodEnd = end
	return applied(mut, in), nil
}

func (m *Machine) paymentFailed(st State, ev *Event) (Result, error) {
	sub, err := requireSubscription(st)
	if err != nil {
		return Result{}, err
	}
	next, err := lifecycle.Next(sub.Status, ev.Type)
	if err != nil {
		return noop("payment failure for " + string(sub.Status) + " subscription"), nil
	}

	sub.Status = next
	sub.UpdatedAt = m.now()

	in := newIntent(IntentPaymentFailed, st.User)
	in.Tier = sub.Tier
	in.PeriodEnd = sub.PeriodEnd
	return applied(Mutation{Subscriptions: []Subscription{sub}}, in), nil
}

func (m *Machine) paymentSucceeded(st State, ev *Event) (Result, error) {
	sub, err := requireSubscription(st)
	if err != nil {
		return Result{}, err
	}
	next, err := lifecycle.Next(sub.Status, ev.Type)
	if err != nil {
		return noop("payment for " + string(sub.Status) + " subscription"), nil
	}

	sub.Status = next
	sub.UpdatedAt = m.now()
	return applied(Mutation{Subscriptions: []Subscription{sub}}), nil
}

func (m *Machine) subscriptionUpdated(st State, ev *Event, ch *Change) (Result, error) {
	sub, err := requireSubscription(st)
	if err != nil {
		return Result{}, err
	}
	if !lifecycle.Can(sub.Status, ev.Type) {
		return noop("update for " + string(sub.Status) + " subscription"), nil
	}

	var (
		changed bool
		intents []Intent
		user    *User
	)

	if ch.CancelAtPeriodEnd != nil && *ch.CancelAtPeriodEnd != sub.CancelAtPeriodEnd {
		sub.CancelAtPeriodEnd = *ch.CancelAtPeriodEnd
		changed = true
		kind := IntentCancellationReversed
		if sub.CancelAtPeriodEnd {
			kind = IntentCancellationScheduled
		}
		intents = append(intents, newIntent(kind, st.User))
	}

	if !ch.PeriodStart.IsZero() && !ch.PeriodStart.Equal(sub.PeriodStart) {
		sub.PeriodStart = ch.PeriodStart
		changed = true
	}
	if !ch.PeriodEnd.IsZero() && !ch.PeriodEnd.Equal(sub.PeriodEnd) {
		sub.PeriodEnd = ch.PeriodEnd
		changed = true
	}

	if sub.Status == StatusTrialing && ch.Status == StatusActive {
		sub.Status = StatusActive
		changed = true
	}

	// Plan switches made in the processor's portal arrive as updates.
	if ch.Tier.Valid() && ch.Tier != TierFree && ch.Tier != sub.Tier {
		sub.Tier = ch.Tier
		if ch.PriceID != "" {
			sub.PriceID = ch.PriceID
		}
		changed = true
		if st.User != nil && isCurrent(st, sub) {
			u := *st.User
			u.Tier = ch.Tier
			u.UpdatedAt = m.now()
			user = &u
		}
	}

	if !changed {
		return noop("nothing changed"), nil
	}

	sub.UpdatedAt = m.now()
	for i := range intents {
		intents[i].Tier = sub.Tier
		intents[i].PeriodEnd = sub.PeriodEnd
	}
	return applied(Mutation{User: user, Subscriptions: []Subscription{sub}}, intents...), nil
}

func (m *Machine) subscriptionDeleted(st State, ev *Event) (Result, error) {
	sub, err := requireSubscription(st)
	if err != nil {
		return Result{}, err
	}
	next, err := lifecycle.Next(sub.Status, ev.Type)
	if err != nil {
		return noop("subscription already canceled"), nil
	}

	now := m.now()
	wasCurrent := isCurrent(st, sub)
	sub.Status = next
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = now

	mut := Mutation{Subscriptions: []Subscription{sub}}
	if st.User != nil && wasCurrent {
		u := *st.User
		u.Tier = TierFree
		u.UpdatedAt = now
		mut.User = &u
	}

	in := newIntent(IntentSubscriptionCanceled, st.User)
	in.Tier = sub.Tier
	in.PeriodEnd = sub.PeriodEnd
	return applied(mut, in), nil
}

func requireSubscription(st State) (Subscription, error) {
	if st.Subscription == nil {
		return Subscription{}, ErrOrphanEvent
	}
	return *st.Subscription, nil
}

func isCurrent(st State, sub Subscription) bool {
	return st.Current == nil || st.Current.ExternalID == sub.ExternalID
}

func applied(mut Mutation, intents ...Intent) Result {
	return Result{Mutation: mut, Intents: intents, Outcome: OutcomeApplied}
}

func noop(reason string) Result {
	return Result{Outcome: OutcomeNoop, Reason: reason}
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
