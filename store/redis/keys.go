package redis

// Redis key naming conventions for renderq data.
// All keys are prefixed with "renderq:" to avoid collisions.

const keyPrefix = "renderq:"

// ── Job keys ──

// jobKey returns the key for a job entity: renderq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// laneKey returns the Sorted Set key for a lane's eligible queue:
// renderq:lane:{name}. Members are job IDs scored by the millisecond
// timestamp at which the job becomes eligible (0 = immediately).
func laneKey(lane string) string { return keyPrefix + "lane:" + lane }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Provider health keys ──

// healthKey returns the key for a provider health record: renderq:health:{provider}
func healthKey(provider string) string { return keyPrefix + "health:" + provider }

// healthProvidersKey is the Set tracking all provider names with records.
const healthProvidersKey = keyPrefix + "health_providers"
