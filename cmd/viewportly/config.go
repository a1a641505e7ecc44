package main

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/viewportly/pkg/config"
	"github.com/dmitrymomot/viewportly/pkg/email"
	"github.com/dmitrymomot/viewportly/pkg/httpserver"
	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/pkg/queue"
	"github.com/dmitrymomot/viewportly/pkg/ratelimiter"
	"github.com/dmitrymomot/viewportly/pkg/redis"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

type appConfig struct {
	AppName string `env:"APP_NAME" envDefault:"viewportly"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	// Attribute keys masked in log output.
	LogRedactKeys []string `env:"LOG_REDACT_KEYS" envSeparator:"," envDefault:"email,signature"`

	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Billing billing.Config
	Stripe  billing.StripeConfig
	Paddle  billing.PaddleConfig
	Email   email.Config
	Queue   queue.Config
	Limits  ratelimiter.Config
}

// loadConfig reads .env files named by --env-file, then the environment.
func loadConfig[T any](cmd *cobra.Command, v *T) error {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	if len(files) == 0 {
		config.LoadDotEnv()
		return config.Load(v)
	}
	return config.Load(v, config.WithEnvFiles(files...))
}

func newLogger(cfg appConfig) *slog.Logger {
	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, cfg.AppName),
		logger.WithContextExtractors(requestIDExtractor, userIDExtractor),
		logger.WithRedactedKeys(cfg.LogRedactKeys...),
	)
	logger.SetAsDefault(log)
	return log
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := middleware.GetReqID(ctx); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}

func userIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := billing.UserIDFromContext(ctx); ok {
		return logger.UserID(id), true
	}
	return slog.Attr{}, false
}
