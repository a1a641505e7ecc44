package queue

import (
	"time"

	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Config holds worker tuning read from QUEUE_* variables.
type Config struct {
	PollTimeout     time.Duration `env:"QUEUE_POLL_TIMEOUT" envDefault:"1s"`
	HandlerTimeout  time.Duration `env:"QUEUE_HANDLER_TIMEOUT" envDefault:"30s"`
	MaxRetries      int           `env:"QUEUE_MAX_RETRIES" envDefault:"8"`
	RetryInterval   time.Duration `env:"QUEUE_RETRY_INTERVAL" envDefault:"1s"`
	MaxRetryBackoff time.Duration `env:"QUEUE_MAX_RETRY_BACKOFF" envDefault:"5m"`
}

// WorkerOptions converts the config into options for NewWorker.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPollTimeout(c.PollTimeout),
		WithHandlerTimeout(c.HandlerTimeout),
		WithMaxAttempts(c.MaxRetries),
		WithRetryBackoff(retry.ExponentialBackoff{
			InitialInterval: c.RetryInterval,
			MaxInterval:     c.MaxRetryBackoff,
			Multiplier:      2,
			JitterFactor:    0.1,
		}),
	}
}
