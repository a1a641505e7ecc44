// Package redis connects to Redis with go-redis/v9 and exposes a readiness
// probe. Config is parsed from REDIS_* variables; leaving REDIS_URL empty
// disables Redis-backed components.
package redis
