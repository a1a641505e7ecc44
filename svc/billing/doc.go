// Package billing keeps user plans in step with an external payment
// processor and enforces per-period usage quotas.
//
// The package owns three concerns: mirroring subscription state reported by
// Stripe or Paddle webhooks, gating metered operations by the user's monthly
// allowance, and emitting notification intents when either of those changes
// something a user should hear about.
//
// # Architecture
//
// Webhooks flow through four stages:
//
//   - Provider     verifies the signature and timestamp and decodes the payload
//   - Deduplicator claims the event id so each event is applied at most once
//   - Machine      computes the subscription transition as a pure function
//   - Dispatcher   delivers the resulting intents to a Sink
//
// Processor ties the stages together. For every event it:
//
//  1. Decodes the payload into a Change.
//  2. Locks the subscription (and the user, for checkouts) with a keylock.Locker.
//  3. Claims the event id. A claim held by another worker returns
//     ErrClaimInProgress so the caller can retry later.
//  4. Applies the transition inside SubscriptionRepository.Apply, which loads
//     State and writes the returned Mutation atomically.
//  5. Completes the claim, still under the lock, and then unlocks.
//  6. Dispatches intents with a context detached from cancellation.
//
// Intents are sent only after the transition is stored, so a failed email
// never rolls back billing state. Events for one subscription are applied in
// the order their claims are acquired.
//
// # Quick Start
//
//	store := billing.NewMemoryStore()
//	catalog := billing.DefaultCatalog(cfg.PricePro, cfg.PriceUnlimited)
//
//	provider, err := billing.NewStripeProvider(stripeCfg, cfg.WebhookTolerance, catalog)
//	if err != nil {
//		return err
//	}
//
//	dispatcher := billing.NewDispatcher(billing.NewLogSink(log))
//	processor := billing.NewProcessor(
//		provider,
//		billing.NewDeduplicator(store, cfg.ClaimLease),
//		store,
//		dispatcher,
//		billing.WithProcessorLogger(log),
//	)
//	meter := billing.NewMeter(store, store, catalog)
//
//	h := billing.NewHandler(provider, processor, store, store, meter, catalog)
//	r.Mount("/billing", h.Routes())
//
// # Webhooks
//
// POST /billing/webhook accepts the raw provider body. A bad signature
// answers 400. Stale or malformed events are logged and acknowledged with 200
// so the provider does not retry them. In sync mode the event is processed
// inline and a claim held elsewhere answers 503; with WithInbox the verified
// event is queued and the handler answers 202. Queued events are
// consumed by Processor.HandleMessage from a queue.Worker:
//
//	worker, err := queue.NewWorker(storage, processor.HandleMessage)
//
// Unknown event types are recorded as OutcomeIgnored and events that reference
// no known user or subscription as OutcomeOrphan. Both are acknowledged so the
// provider stops redelivering them.
//
// # Usage Metering
//
// The Meter gates metered operations in two steps:
//
//	res, err := meter.CheckAndReserve(ctx, userID)
//	if errors.Is(err, billing.ErrLimitExceeded) {
//		// refuse with a limit response
//	}
//	// run the operation, then on success:
//	intents, err := meter.Commit(ctx, res)
//
// CheckAndReserve never writes. Commit increments the counter for the current
// period and returns an IntentUsageThreshold for each of Thresholds crossed for
// the first time in that period. Periods are calendar months in the location
// set by WithLocation.
//
// # Storage
//
// Persistence is pluggable through UserRepository, SubscriptionRepository,
// UsageLedger and EventStore. MemoryStore implements all of them for tests and
// single-instance runs. The pgstore subpackage implements them on PostgreSQL
// and redisstore provides a shared EventStore on Redis.
//
// # Error Handling
//
// Sentinel errors such as ErrOrphanEvent, ErrLimitExceeded and
// ErrClaimInProgress are matched with errors.Is. VerificationError and
// LimitError carry details and unwrap to their sentinels.
package billing
