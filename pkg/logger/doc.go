// Package logger builds *slog.Logger instances with functional options and
// injects request-scoped values from context.Context into every record.
//
// # Configuration
//
// New starts from JSON on stdout at info level and applies options in order.
// WithEnvironment picks JSON at info for production and staging and text at
// debug elsewhere, and tags every record with the service and environment.
// WithLevel, WithFormat and WithOutput override individual settings.
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "viewportly"),
//	    logger.WithContextValue("request_id", requestIDKey),
//	    logger.WithRedactedKeys("signature", "email"),
//	)
//
// # Context Values
//
// WithContextValue and WithContextExtractors add attributes read from the
// context passed to the *Context logging methods. An attribute already set on
// the record wins over the context value.
//
// # Redaction
//
// WithRedactedKeys replaces the value of any attribute with a listed key by
// "[redacted]", at any group depth. It is meant for values that can end up in
// error context, such as webhook signatures, API keys or email addresses.
//
// # Attributes
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log.InfoContext(ctx, "webhook processed",
//	    logger.EventID(ev.ID),
//	    logger.Outcome("applied"),
//	)
//
// Error returns an empty Attr for a nil error so callers can log
// unconditionally.
package logger
