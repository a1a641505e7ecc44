package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/viewportly/pkg/httpserver"
	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/pkg/queue"
	"github.com/dmitrymomot/viewportly/pkg/redis"
	"github.com/dmitrymomot/viewportly/svc/analysis"
	"github.com/dmitrymomot/viewportly/svc/billing"
	"github.com/dmitrymomot/viewportly/svc/billing/pgstore"
)

// UserIDHeader carries the authenticated user id set by the upstream
// auth proxy.
const UserIDHeader = "X-User-ID"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook workers and maintenance jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var cfg appConfig
		if err := loadConfig(cmd, &cfg); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger(cfg))
	},
}

func serve(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()
	readiness := []func(context.Context) error{pg.Healthcheck(pool, cfg.HTTP.ProbeTimeout)}

	var rdb goredis.UniversalClient
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
		readiness = append(readiness, redis.Healthcheck(client, cfg.HTTP.ProbeTimeout))
	}

	catalog, err := cfg.Billing.Catalog()
	if err != nil {
		return err
	}
	loc, err := cfg.Billing.Location()
	if err != nil {
		return errors.Join(billing.ErrInvalidConfig, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := billing.NewMetrics(reg)

	store := pgstore.New(pool)
	provider, err := newProvider(cfg, catalog)
	if err != nil {
		return err
	}
	sink, err := newSink(cfg, log)
	if err != nil {
		return err
	}
	events, err := newEventStore(cfg.Billing, store, rdb)
	if err != nil {
		return err
	}

	dispatcher := billing.NewDispatcher(sink,
		billing.WithDispatcherLogger(log),
		billing.WithDispatcherMetrics(metrics),
	)
	processor := billing.NewProcessor(provider,
		billing.NewDeduplicator(events, cfg.Billing.ClaimLease),
		store,
		dispatcher,
		billing.WithProcessorLogger(log),
		billing.WithProcessorMetrics(metrics),
	)
	meter := billing.NewMeter(store, store, catalog,
		billing.WithLocation(loc),
		billing.WithMeterMetrics(metrics),
		billing.WithMeterLogger(log),
	)

	handlerOpts := []billing.HandlerOption{
		billing.WithRedirectURLs(cfg.Billing.SuccessURL, cfg.Billing.CancelURL, cfg.Billing.ReturnURL),
		billing.WithHandlerMetrics(metrics),
		billing.WithHandlerLogger(log),
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Billing.WebhookMode == billing.WebhookModeAsync {
		storage := newInboxStorage(cfg.Billing, rdb)
		inbox, err := queue.NewEnqueuer(storage)
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, billing.WithInbox(inbox))

		worker, err := queue.NewWorker(storage, processor.HandleMessage, append(
			cfg.Queue.WorkerOptions(),
			queue.WithConcurrency(cfg.Billing.Workers),
			queue.WithWorkerLogger(log),
		)...)
		if err != nil {
			return err
		}
		g.Go(worker.Run(ctx))
	}

	if p, ok := events.(pruner); ok {
		g.Go(pruneLoop(ctx, p, cfg.Billing.EventRetention, log))
	}

	limitAnalyses, err := newAnalysisLimiter(cfg.Limits, rdb, log)
	if err != nil {
		return err
	}

	billingHandler := billing.NewHandler(provider, processor, store, store, meter, catalog, handlerOpts...)
	analyses := analysis.NewService(meter, dispatcher, analysis.NewViewportAnalyzer(), analysis.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, authenticatedUser)
	r.Get("/health/live", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, readiness...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/billing", billingHandler.Routes())
	r.With(limitAnalyses).Mount("/analyses", analysis.NewHandler(analyses, log).Routes())

	server := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	g.Go(func() error { return server.Run(ctx, r) })

	log.InfoContext(ctx, "viewportly started",
		logger.Provider(provider.Name()),
		slog.String("webhook_mode", cfg.Billing.WebhookMode),
		slog.String("event_store", cfg.Billing.EventStore),
	)
	return g.Wait()
}

// authenticatedUser trusts UserIDHeader as set by the auth proxy in front
// of the service.
func authenticatedUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get(UserIDHeader)); err == nil {
			r = r.WithContext(billing.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

type pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// pruneLoop deletes processed events past retention once an hour.
func pruneLoop(ctx context.Context, p pruner, retention time.Duration, log *slog.Logger) func() error {
	return func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			n, err := p.Prune(ctx, time.Now().Add(-retention))
			switch {
			case err != nil && ctx.Err() == nil:
				log.ErrorContext(ctx, "failed to prune processed events", logger.Error(err))
			case n > 0:
				log.InfoContext(ctx, "pruned processed events", slog.Int64("deleted", n))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
