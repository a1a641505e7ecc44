package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/viewportly/svc/billing"
)

// Key layout defaults.
const (
	pendingValue = "pending"
	donePrefix   = "done:"

	DefaultKeyPrefix = "viewportly:events:"
	DefaultRetention = 30 * 24 * time.Hour
)

var _ billing.EventStore = (*EventStore)(nil)

// EventStore stores one key per event id. A pending key carries the claim
// lease as its TTL; a completed key holds "done:<outcome>" for the
// retention period.
type EventStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures an EventStore instance.
type Option func(*EventStore)

// WithKeyPrefix namespaces event keys. An empty prefix is ignored.
func WithKeyPrefix(prefix string) Option {
	return func(s *EventStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long completed events are remembered.
func WithRetention(d time.Duration) Option {
	return func(s *EventStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// New creates an EventStore on client.
func New(client redis.UniversalClient, opts ...Option) *EventStore {
	s := &EventStore{client: client, prefix: DefaultKeyPrefix, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventStore) key(id string) string {
	return s.prefix + id
}

// Claim sets a pending key with the lease as its TTL. An expired lease can
// be claimed again.
func (s *EventStore) Claim(ctx context.Context, id string, lease time.Duration) (billing.ClaimResult, error) {
	if lease <= 0 {
		lease = time.Millisecond
	}
	ok, err := s.client.SetNX(ctx, s.key(id), pendingValue, lease).Result()
	if err != nil {
		return 0, err
	}
	if ok {
		return billing.ClaimAcquired, nil
	}

	val, err := s.client.Get(ctx, s.key(id)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or released between the two calls.
		return billing.ClaimBusy, nil
	case err != nil:
		return 0, err
	case strings.HasPrefix(val, donePrefix):
		return billing.ClaimAlreadyProcessed, nil
	default:
		return billing.ClaimBusy, nil
	}
}

// completeScript overwrites the key unless it already records an outcome.
var completeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and string.sub(v, 1, 5) == "done:" then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// releaseScript deletes the key only while it is still pending.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Complete records outcome for the retention period.
func (s *EventStore) Complete(ctx context.Context, id string, outcome billing.Outcome) error {
	return completeScript.Run(ctx, s.client, []string{s.key(id)},
		donePrefix+string(outcome), s.retention.Milliseconds(),
	).Err()
}

// Release deletes the key only while it is still pending.
func (s *EventStore) Release(ctx context.Context, id string) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(id)}, pendingValue).Err()
}

// Outcome returns the recorded outcome for a completed event.
func (s *EventStore) Outcome(ctx context.Context, id string) (billing.Outcome, bool, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	outcome, done := strings.CutPrefix(val, donePrefix)
	return billing.Outcome(outcome), done, nil
}
