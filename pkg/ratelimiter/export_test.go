package ratelimiter

import "time"

// SetRedisClock replaces the store clock in tests.
func SetRedisClock(s *RedisStore, now func() time.Time) {
	s.now = now
}
