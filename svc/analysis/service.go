package analysis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

// Service runs analyses under the billing meter.
type Service struct {
	meter      *billing.Meter
	dispatcher *billing.Dispatcher
	analyzer   Analyzer
	log        *slog.Logger
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service.
func NewService(meter *billing.Meter, dispatcher *billing.Dispatcher, analyzer Analyzer, opts ...ServiceOption) *Service {
	s := &Service{
		meter:      meter,
		dispatcher: dispatcher,
		analyzer:   analyzer,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze checks the quota, runs the analyzer and commits one unit of
// usage. A failed analysis is not counted. Commit failures are logged and
// the report is still returned.
func (s *Service) Analyze(ctx context.Context, userID uuid.UUID, pageURL string) (*Report, error) {
	if _, err := ValidateURL(pageURL); err != nil {
		return nil, err
	}

	res, err := s.meter.CheckAndReserve(ctx, userID)
	if err != nil {
		return nil, err
	}

	rep, err := s.analyzer.Analyze(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	intents, err := s.meter.Commit(ctx, res)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to commit usage",
			logger.UserID(userID),
			logger.Error(err),
		)
		return rep, nil
	}
	if len(intents) > 0 {
		s.dispatcher.Dispatch(ctx, intents)
	}
	return rep, nil
}
