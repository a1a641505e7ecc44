package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/viewportly/pkg/keylock"
	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/queue"
	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Processor applies verified webhook events: claim, decode, transition under
// a per-subscription lock, complete, then dispatch intents.
type Processor struct {
	decoder    PayloadDecoder
	dedup      *Deduplicator
	subs       SubscriptionRepository
	machine    *Machine
	locks      *keylock.Locker
	dispatcher *Dispatcher
	metrics    *Metrics
	log        *slog.Logger
	retryOpts  []retry.Option
}

// ProcessorOption configures a Processor instance.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the processor logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.log = l }
}

// WithProcessorMetrics records event outcomes.
func WithProcessorMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithMachine replaces the default state machine.
func WithMachine(m *Machine) ProcessorOption {
	return func(p *Processor) { p.machine = m }
}

// WithLocker shares a lock table between processors in one process.
func WithLocker(l *keylock.Locker) ProcessorOption {
	return func(p *Processor) { p.locks = l }
}

// WithStoreRetry sets the retry policy for store writes.
func WithStoreRetry(opts ...retry.Option) ProcessorOption {
	return func(p *Processor) { p.retryOpts = opts }
}

// NewProcessor creates a Processor.
func NewProcessor(decoder PayloadDecoder, dedup *Deduplicator, subs SubscriptionRepository, dispatcher *Dispatcher, opts ...ProcessorOption) *Processor {
	p := &Processor{
		decoder:    decoder,
		dedup:      dedup,
		subs:       subs,
		dispatcher: dispatcher,
		machine:    NewMachine(),
		locks:      keylock.New(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retryOpts = append([]retry.Option{retry.WithRetryIf(isTransient)}, p.retryOpts...)
	return p
}

// Process handles one event. OutcomeDuplicate means it was processed before.
// A returned error means nothing was recorded and the event may be retried.
//
// The per-subscription lock is taken before the claim and held until the
// outcome is recorded, so events for one subscription apply in the order
// they are claimed. Intents are dispatched after the lock is released.
func (p *Processor) Process(ctx context.Context, ev *Event) (Outcome, error) {
	start := time.Now()
	log := p.log.With(logger.EventID(ev.ID), logger.EventType(string(ev.Type)), logger.Provider(ev.Provider))

	res, owned, err := p.process(ctx, ev, log)
	if err != nil {
		if !errors.Is(err, ErrClaimInProgress) {
			log.ErrorContext(ctx, "event processing failed", logger.Error(err))
		}
		return "", err
	}
	if !owned {
		p.metrics.eventProcessed(ev.Type, OutcomeDuplicate, time.Since(start))
		log.DebugContext(ctx, "duplicate event skipped")
		return OutcomeDuplicate, nil
	}

	p.metrics.eventProcessed(ev.Type, res.Outcome, time.Since(start))
	log.InfoContext(ctx, "event processed",
		logger.Outcome(string(res.Outcome)),
		slog.String("reason", res.Reason),
		slog.Int("intents", len(res.Intents)),
	)

	if len(res.Intents) > 0 {
		p.dispatcher.Dispatch(context.WithoutCancel(ctx), res.Intents)
	}
	return res.Outcome, nil
}

func (p *Processor) process(ctx context.Context, ev *Event, log *slog.Logger) (Result, bool, error) {
	if !ev.Type.Known() {
		return p.claimed(ctx, ev, log, func() (Result, error) {
			return Result{Outcome: OutcomeIgnored, Reason: "unhandled event type " + ev.ProviderType}, nil
		})
	}

	ch, err := p.decoder.Decode(ev)
	if err != nil {
		log.WarnContext(ctx, "undecodable event payload", logger.Error(err))
		return p.claimed(ctx, ev, log, func() (Result, error) {
			return Result{Outcome: OutcomeOrphan, Reason: err.Error()}, nil
		})
	}
	log = log.With(logger.SubscriptionID(ch.SubscriptionID))

	keys := []string{"sub:" + ch.SubscriptionID}
	if ev.Type == EventCheckoutCompleted && ch.UserID != uuid.Nil {
		keys = append(keys, "user:"+ch.UserID.String())
	}
	unlock, err := p.locks.Lock(ctx, keys...)
	if err != nil {
		return Result{}, false, err
	}
	defer unlock()

	return p.claimed(ctx, ev, log, func() (Result, error) {
		return p.apply(ctx, ev, ch, log)
	})
}

// claimed runs fn only when this worker owns the event, then records the
// outcome. A failed fn releases the claim for redelivery.
func (p *Processor) claimed(ctx context.Context, ev *Event, log *slog.Logger, fn func() (Result, error)) (Result, bool, error) {
	owned, err := p.dedup.Claim(ctx, ev.ID)
	if err != nil || !owned {
		return Result{}, false, err
	}

	res, err := fn()
	if err != nil {
		if relErr := p.dedup.Release(context.WithoutCancel(ctx), ev.ID); relErr != nil {
			log.ErrorContext(ctx, "failed to release event claim", logger.Error(relErr))
		}
		return Result{}, true, err
	}

	if err := p.dedup.Complete(context.WithoutCancel(ctx), ev.ID, res.Outcome); err != nil {
		// The transition is committed; the lease still guards redelivery until it expires.
		log.ErrorContext(ctx, "failed to mark event processed", logger.Error(err))
	}
	return res, true, nil
}

func (p *Processor) apply(ctx context.Context, ev *Event, ch *Change, log *slog.Logger) (Result, error) {
	var res Result
	ref := StateRef{SubscriptionID: ch.SubscriptionID, UserID: ch.UserID, CustomerID: ch.CustomerID}
	err := retry.Do(ctx, func(ctx context.Context) error {
		return p.subs.Apply(ctx, ref, func(st State) (Mutation, error) {
			r, err := p.machine.Transition(st, ev, ch)
			if err != nil {
				return Mutation{}, err
			}
			res = r
			return r.Mutation, nil
		})
	}, append(slices.Clone(p.retryOpts), retry.WithOnRetry(func(attempt int, err error) {
		log.WarnContext(ctx, "retrying subscription update", logger.Attempt(attempt), logger.Error(err))
	}))...)

	if errors.Is(err, ErrOrphanEvent) {
		log.WarnContext(ctx, "orphan event", logger.Error(err))
		return Result{Outcome: OutcomeOrphan, Reason: err.Error()}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// HandleMessage adapts Process to a queue.Handler. Undecodable messages are
// dead-lettered at once.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.Message) error {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("%w: %w", queue.ErrSkipRetry, err)
	}
	_, err := p.Process(ctx, &ev)
	return err
}

// isTransient reports whether a store error is worth retrying.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrOrphanEvent),
		errors.Is(err, ErrUnrecoverableStore),
		errors.Is(err, ErrUsageDecrease),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
