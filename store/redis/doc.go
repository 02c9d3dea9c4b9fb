// Package redis implements store.Store using Redis for high-throughput
// ephemeral workloads. Jobs are stored as Redis Hashes; each lane has a
// Sorted Set of queued job IDs scored by the timestamp at which the job
// becomes eligible, so a single ZRANGEBYSCORE finds dispatchable work.
//
// Claim and cancel run as Lua scripts so the status check and the write
// happen in one atomic server-side step.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
