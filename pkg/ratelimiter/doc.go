// Package ratelimiter implements a token bucket limiter for short-term
// request bursts. Buckets live in process memory or in Redis when several
// replicas must share them.
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: 6 * time.Second,
//	})
//	r.With(ratelimiter.Middleware(bucket, keyFunc)).Post("/analyses", h)
package ratelimiter
