// Package redisstore keeps the processed-event ledger in Redis for
// deployments where several replicas share one webhook endpoint.
//
// Each event id maps to one key under a configurable prefix:
//
//	viewportly:events:<id> = "pending"        TTL = claim lease
//	viewportly:events:<id> = "done:<outcome>" TTL = retention
//
// Claim uses SET NX, so only one worker holds a live lease. When a worker dies
// the pending key expires and a redelivery can claim the event again.
// Complete and Release run as Lua scripts. Complete never overwrites a
// recorded outcome and Release deletes the key only while it is pending.
//
// # Usage
//
//	store := redisstore.New(client,
//		redisstore.WithKeyPrefix("viewportly:events:"),
//		redisstore.WithRetention(30*24*time.Hour),
//	)
//	dedup := billing.NewDeduplicator(store, 2*time.Minute)
//
// Completed keys expire on their own, so no pruning job is needed.
package redisstore
