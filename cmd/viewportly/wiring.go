package main

import (
	"fmt"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/viewportly/pkg/email"
	"github.com/dmitrymomot/viewportly/pkg/queue"
	"github.com/dmitrymomot/viewportly/pkg/ratelimiter"
	"github.com/dmitrymomot/viewportly/svc/billing"
	"github.com/dmitrymomot/viewportly/svc/billing/pgstore"
	"github.com/dmitrymomot/viewportly/svc/billing/redisstore"
)

const (
	eventStorePostgres = "postgres"
	eventStoreRedis    = "redis"
	eventStoreMemory   = "memory"
)

func newProvider(cfg appConfig, catalog *billing.Catalog) (billing.Provider, error) {
	switch cfg.Billing.Provider {
	case "stripe", "":
		return billing.NewStripeProvider(cfg.Stripe, cfg.Billing.WebhookTolerance, catalog)
	case "paddle":
		return billing.NewPaddleProvider(cfg.Paddle, cfg.Billing.WebhookTolerance, catalog)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", billing.ErrInvalidConfig, cfg.Billing.Provider)
	}
}

// newSink picks Postmark when a server token is set, the file sender when a
// dev directory is set, and logging otherwise.
func newSink(cfg appConfig, log *slog.Logger) (billing.Sink, error) {
	switch {
	case cfg.Email.PostmarkServerToken != "":
		sender, err := email.NewPostmarkClient(cfg.Email)
		if err != nil {
			return nil, err
		}
		return billing.NewEmailSink(sender, cfg.AppName), nil
	case cfg.Email.DevDir != "":
		return billing.NewEmailSink(email.NewDevSender(cfg.Email.DevDir), cfg.AppName), nil
	default:
		return billing.NewLogSink(log), nil
	}
}

func newEventStore(cfg billing.Config, store *pgstore.Store, rdb goredis.UniversalClient) (billing.EventStore, error) {
	switch cfg.EventStore {
	case eventStorePostgres, "":
		return store, nil
	case eventStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("%w: redis event store requires REDIS_URL", billing.ErrInvalidConfig)
		}
		return redisstore.New(rdb, redisstore.WithRetention(cfg.EventRetention)), nil
	case eventStoreMemory:
		return billing.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown event store %q", billing.ErrInvalidConfig, cfg.EventStore)
	}
}

// newInboxStorage shares the inbox across replicas through Redis when it is
// configured.
func newInboxStorage(cfg billing.Config, rdb goredis.UniversalClient) queue.Storage {
	if rdb != nil {
		return queue.NewRedisStorage(rdb, cfg.InboxKey)
	}
	return queue.NewMemoryStorage(cfg.InboxCapacity)
}

// newAnalysisLimiter throttles analysis bursts per user. Buckets are shared
// through Redis when it is configured.
func newAnalysisLimiter(cfg ratelimiter.Config, rdb goredis.UniversalClient, log *slog.Logger) (func(http.Handler) http.Handler, error) {
	var store ratelimiter.Store = ratelimiter.NewMemoryStore()
	if rdb != nil {
		store = ratelimiter.NewRedisStore(rdb, "viewportly:ratelimit:analyses:")
	}
	bucket, err := ratelimiter.NewBucket(store, cfg)
	if err != nil {
		return nil, err
	}
	return ratelimiter.Middleware(bucket, userKey,
		ratelimiter.WithLogger(log),
		ratelimiter.WithResponder(func(w http.ResponseWriter, _ *http.Request, _ *ratelimiter.Result) {
			billing.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many analysis requests, slow down")
		}),
	), nil
}

func userKey(r *http.Request) string {
	if id, ok := billing.UserIDFromContext(r.Context()); ok {
		return id.String()
	}
	return ""
}
