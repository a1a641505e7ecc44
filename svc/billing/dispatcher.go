package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/viewportly/pkg/email"
	"github.com/dmitrymomot/viewportly/pkg/email/templates"
	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Sink delivers one intent. A nil error means sent.
type Sink interface {
	Send(ctx context.Context, in Intent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, in Intent) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, in Intent) error { return f(ctx, in) }

// Dispatcher drains intents into a Sink with bounded retry. Failures are
// logged and counted; they never propagate back into billing state.
type Dispatcher struct {
	sink      Sink
	log       *slog.Logger
	metrics   *Metrics
	retryOpts []retry.Option
}

// DispatcherOption configures a Dispatcher instance.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for delivery failures.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithDispatcherMetrics records delivered and failed intents.
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatcherRetry sets the retry policy per intent.
func WithDispatcherRetry(opts ...retry.Option) DispatcherOption {
	return func(d *Dispatcher) { d.retryOpts = opts }
}

// NewDispatcher creates a dispatcher that sends through sink.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sink: sink, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends intents in order and returns how many failed.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []Intent) int {
	failed := 0
	for _, in := range intents {
		err := retry.Do(ctx, func(ctx context.Context) error {
			return d.sink.Send(ctx, in)
		}, d.retryOpts...)
		d.metrics.notification(in.Kind, err == nil)
		if err != nil {
			failed++
			d.log.ErrorContext(ctx, "notification failed",
				logger.Intent(string(in.Kind)),
				logger.UserID(in.UserID),
				logger.Error(err),
			)
			continue
		}
		d.log.DebugContext(ctx, "notification sent", logger.Intent(string(in.Kind)), logger.UserID(in.UserID))
	}
	return failed
}

// LogSink writes intents to the log instead of delivering them.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink that logs through log.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Send logs the intent. The recipient address is never written; the user id
// identifies the recipient.
func (s *LogSink) Send(ctx context.Context, in Intent) error {
	s.log.InfoContext(ctx, "notification",
		logger.Intent(string(in.Kind)),
		logger.UserID(in.UserID),
		slog.Bool("has_email", in.Email != ""),
		slog.String("tier", string(in.Tier)),
		slog.Int("percent", in.Percent),
	)
	return nil
}

// EmailSink renders intents into emails.
type EmailSink struct {
	sender  email.EmailSender
	appName string
}

// NewEmailSink returns a sink that mails through sender.
func NewEmailSink(sender email.EmailSender, appName string) *EmailSink {
	return &EmailSink{sender: sender, appName: appName}
}

// Send renders and sends the email for in.
func (s *EmailSink) Send(ctx context.Context, in Intent) error {
	if in.Email == "" {
		return retry.Permanent(fmt.Errorf("intent %s for user %s has no email address", in.Kind, in.UserID))
	}

	subject, body := intentEmail(s.appName, in)
	footer := fmt.Sprintf("You are receiving this because you have a %s account.", s.appName)
	html, err := templates.Render(ctx, templates.Layout(subject, footer, body))
	if err != nil {
		return retry.Permanent(err)
	}

	err = s.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   in.Email,
		Subject:  subject,
		BodyHTML: html,
		Tag:      string(in.Kind),
	})
	if err != nil && isInvalidEmail(err) {
		return retry.Permanent(err)
	}
	return err
}
