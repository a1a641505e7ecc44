package billing_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/retry"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

var fastRetry = retry.WithBackoff(retry.FixedBackoff{Interval: time.Millisecond})

// jsonDecoder reads a billing.Change straight from the event data.
type jsonDecoder struct{}

func (jsonDecoder) Decode(ev *billing.Event) (*billing.Change, error) {
	var ch billing.Change
	if err := json.Unmarshal(ev.Data, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

type recordingSink struct {
	mu      sync.Mutex
	intents []billing.Intent
	err     error
}

func (s *recordingSink) Send(_ context.Context, in billing.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.intents = append(s.intents, in)
	return nil
}

func (s *recordingSink) kinds() []billing.IntentKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.IntentKind, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, in.Kind)
	}
	return out
}

type fixture struct {
	store     *billing.MemoryStore
	sink      *recordingSink
	processor *billing.Processor
	user      *billing.User
}

func newFixture(t *testing.T, subs billing.SubscriptionRepository) *fixture {
	t.Helper()
	store := billing.NewMemoryStore()
	if subs == nil {
		subs = store
	}
	sink := &recordingSink{}
	log := logger.Noop()

	user := &billing.User{ID: uuid.New(), Email: "grace@example.com", Name: "Grace", Tier: billing.TierFree}
	require.NoError(t, store.CreateUser(context.Background(), user))

	p := billing.NewProcessor(
		jsonDecoder{},
		billing.NewDeduplicator(store, time.Minute, fastRetry),
		subs,
		billing.NewDispatcher(sink, billing.WithDispatcherLogger(log), billing.WithDispatcherRetry(fastRetry)),
		billing.WithProcessorLogger(log),
		billing.WithStoreRetry(fastRetry),
	)
	return &fixture{store: store, sink: sink, processor: p, user: user}
}

func newEvent(t *testing.T, id string, typ billing.EventType, ch billing.Change) *billing.Event {
	t.Helper()
	data, err := json.Marshal(ch)
	require.NoError(t, err)
	return &billing.Event{ID: id, Type: typ, ProviderType: string(typ), Provider: "test", OccurredAt: time.Now().UTC(), Data: data}
}
