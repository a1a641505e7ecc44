// Package pgstore implements the billing repositories on PostgreSQL.
//
// A single Store satisfies billing.UserRepository,
// billing.SubscriptionRepository, billing.UsageLedger and billing.EventStore
// over the tables created by the migrations package:
//
//   - users            accounts and their processor customer ids
//   - subscriptions    mirrored processor subscriptions
//   - usage_records    one counter per user and period
//   - processed_events claim and outcome of every webhook event
//
// # Concurrency
//
// Apply loads the referenced subscription and the user's current subscription
// with SELECT ... FOR UPDATE and writes the mutation in the same transaction.
// A partial unique index keeps at most one current subscription per user, and
// violations are reported as billing.ErrUnrecoverableStore so the processor
// does not retry them.
//
// UpdateUsage creates the period row before locking it, so the first two
// writes of a month still serialize on one row.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg.PG)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
//	meter := billing.NewMeter(store, store, catalog)
//
// Prune removes processed events older than a cutoff and is run periodically
// by the serve command.
package pgstore
