package postgres

// migration is one named, ordered schema change. Statements run
// individually so partial DDL failures point at the exact statement.
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "001_create_jobs_table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS renderq_jobs (
				id                 TEXT PRIMARY KEY,
				status             TEXT NOT NULL DEFAULT 'queued',
				lane               TEXT NOT NULL DEFAULT 'default',
				prompt             TEXT NOT NULL,
				payload            BYTEA,
				requested_provider TEXT NOT NULL DEFAULT '',
				requested_model    TEXT NOT NULL DEFAULT '',
				max_retries        INTEGER NOT NULL DEFAULT 3,
				retry_count        INTEGER NOT NULL DEFAULT 0,
				assigned_provider  TEXT NOT NULL DEFAULT '',
				assigned_model     TEXT NOT NULL DEFAULT '',
				result             BYTEA,
				error_message      TEXT NOT NULL DEFAULT '',
				last_error         TEXT NOT NULL DEFAULT '',
				used_provider      TEXT NOT NULL DEFAULT '',
				used_model         TEXT NOT NULL DEFAULT '',
				generation_time    BIGINT NOT NULL DEFAULT 0,
				cost_usd           DOUBLE PRECISION NOT NULL DEFAULT 0,
				next_eligible_at   TIMESTAMPTZ,
				cancel_requested   BOOLEAN NOT NULL DEFAULT FALSE,
				worker_id          TEXT,
				started_at         TIMESTAMPTZ,
				completed_at       TIMESTAMPTZ,
				heartbeat_at       TIMESTAMPTZ,
				timeout            BIGINT NOT NULL DEFAULT 0,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_renderq_jobs_claim
				ON renderq_jobs (lane, created_at ASC)
				WHERE status = 'queued'`,
			`CREATE INDEX IF NOT EXISTS idx_renderq_jobs_status
				ON renderq_jobs (status)`,
			`CREATE INDEX IF NOT EXISTS idx_renderq_jobs_heartbeat
				ON renderq_jobs (heartbeat_at)
				WHERE status = 'processing'`,
		},
	},
	{
		name: "002_create_provider_health_table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS renderq_provider_health (
				provider             TEXT PRIMARY KEY,
				status               TEXT NOT NULL DEFAULT 'healthy',
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				avg_response_time    BIGINT NOT NULL DEFAULT 0,
				last_checked_at      TIMESTAMPTZ,
				cost_per_request     DOUBLE PRECISION NOT NULL DEFAULT 0
			)`,
		},
	},
}
