package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// EventID records the external event identifier.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the canonical event type.
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// SubscriptionID records the processor-side subscription identifier.
func SubscriptionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("subscription_id", id)
}

// Outcome returns the event outcome attribute.
func Outcome(outcome string) slog.Attr {
	return slog.String("outcome", outcome)
}

// Intent returns the intent kind attribute.
func Intent(kind string) slog.Attr {
	return slog.String("intent", kind)
}

// Provider returns the payment provider attribute.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// MessageID returns the queue message id attribute.
func MessageID(id string) slog.Attr {
	return slog.String("message_id", id)
}

// Attempt returns the attempt number attribute.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration returns the elapsed time attribute.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
