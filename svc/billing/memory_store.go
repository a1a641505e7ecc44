package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements every repository in process memory. It is used by
// tests and by single-node development setups.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[uuid.UUID]User
	subs   map[string]Subscription
	usage  map[string]UsageRecord
	events map[string]ProcessedEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		users:  make(map[uuid.UUID]User),
		subs:   make(map[string]Subscription),
		usage:  make(map[string]UsageRecord),
		events: make(map[string]ProcessedEvent),
	}
}

// GetUser returns the user with id.
func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// GetUserByCustomerID returns the user linked to customerID.
func (s *MemoryStore) GetUserByCustomerID(_ context.Context, customerID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.userByCustomer(customerID); u != nil {
		return u, nil
	}
	return nil, ErrUserNotFound
}

// CreateUser stores u.
func (s *MemoryStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return ErrUserExists
	}
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) {
			return ErrUserExists
		}
	}
	s.users[u.ID] = *u
	return nil
}

// GetCurrentSubscription returns the user's current subscription.
func (s *MemoryStore) GetCurrentSubscription(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub := s.current(userID); sub != nil {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

// Subscription returns a stored subscription by external id.
func (s *MemoryStore) Subscription(externalID string) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[externalID]
	return sub, ok
}

// Apply loads state for ref and writes the mutation returned by fn atomically.
func (s *MemoryStore) Apply(_ context.Context, ref StateRef, fn func(State) (Mutation, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	userID := ref.UserID
	if sub, ok := s.subs[ref.SubscriptionID]; ok && ref.SubscriptionID != "" {
		st.Subscription = &sub
		userID = sub.UserID
	}
	if userID != uuid.Nil {
		if u, ok := s.users[userID]; ok {
			st.User = &u
		}
	}
	if st.User == nil && ref.CustomerID != "" {
		st.User = s.userByCustomer(ref.CustomerID)
	}
	if st.User != nil {
		st.Current = s.current(st.User.ID)
	}

	mut, err := fn(st)
	if err != nil {
		return err
	}

	if err := s.checkSingleCurrent(mut.Subscriptions); err != nil {
		return err
	}
	for _, sub := range mut.Subscriptions {
		s.subs[sub.ExternalID] = sub
	}
	if mut.User != nil {
		s.users[mut.User.ID] = *mut.User
	}
	return nil
}

// GetUsage returns the usage record for period.
func (s *MemoryStore) GetUsage(_ context.Context, userID uuid.UUID, period string) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.usage[usageKey(userID, period)]; ok {
		return rec, nil
	}
	return UsageRecord{UserID: userID, Period: period}, nil
}

// UpdateUsage atomically replaces the usage record with fn's result.
func (s *MemoryStore) UpdateUsage(_ context.Context, userID uuid.UUID, period string, fn func(UsageRecord) (UsageRecord, error)) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(userID, period)
	prev, ok := s.usage[key]
	if !ok {
		prev = UsageRecord{UserID: userID, Period: period}
	}
	next, err := fn(prev)
	if err != nil {
		return UsageRecord{}, err
	}
	if next.Count < prev.Count {
		return UsageRecord{}, ErrUsageDecrease
	}
	next.UserID, next.Period, next.UpdatedAt = userID, period, s.now()
	s.usage[key] = next
	return next, nil
}

// Claim takes a lease on id.
func (s *MemoryStore) Claim(_ context.Context, id string, lease time.Duration) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ev, ok := s.events[id]; ok {
		if ev.ProcessedAt != nil {
			return ClaimAlreadyProcessed, nil
		}
		if now.Sub(ev.ClaimedAt) < lease {
			return ClaimBusy, nil
		}
	}
	s.events[id] = ProcessedEvent{ID: id, ClaimedAt: now}
	return ClaimAcquired, nil
}

// Complete marks id as processed.
func (s *MemoryStore) Complete(_ context.Context, id string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if ok && ev.ProcessedAt != nil {
		return nil
	}
	now := s.now()
	if !ok {
		ev = ProcessedEvent{ID: id, ClaimedAt: now}
	}
	ev.ProcessedAt = &now
	ev.Outcome = outcome
	s.events[id] = ev
	return nil
}

// Release drops an unfinished claim.
func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.events[id]; ok && ev.ProcessedAt == nil {
		delete(s.events, id)
	}
	return nil
}

// ProcessedEvent returns the record for id, if any.
func (s *MemoryStore) ProcessedEvent(id string) (ProcessedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

func (s *MemoryStore) userByCustomer(customerID string) *User {
	if customerID == "" {
		return nil
	}
	for _, u := range s.users {
		if u.CustomerID == customerID {
			return &u
		}
	}
	return nil
}

func (s *MemoryStore) current(userID uuid.UUID) *Subscription {
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status.Current() {
			return &sub
		}
	}
	return nil
}

// checkSingleCurrent rejects a write that would leave a user with two
// current subscriptions.
func (s *MemoryStore) checkSingleCurrent(writes []Subscription) error {
	staged := make(map[string]Subscription, len(writes))
	for _, sub := range writes {
		staged[sub.ExternalID] = sub
	}
	for _, sub := range writes {
		if !sub.Status.Current() {
			continue
		}
		for ext, other := range s.subs {
			if ext == sub.ExternalID || other.UserID != sub.UserID {
				continue
			}
			if w, ok := staged[ext]; ok {
				other = w
			}
			if other.Status.Current() {
				return fmt.Errorf("%w: user %s already has subscription %s", ErrUnrecoverableStore, sub.UserID, ext)
			}
		}
	}
	return nil
}

func usageKey(userID uuid.UUID, period string) string {
	return userID.String() + "|" + period
}
