package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_runs (
		zone_key         TEXT NOT NULL,
		zone_id          TEXT NOT NULL DEFAULT '',
		zone_name        TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMPTZ NOT NULL,
		run_date         TEXT NOT NULL,
		duration_minutes DOUBLE PRECISION NOT NULL,
		expected_gallons DOUBLE PRECISION,
		notes            TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (zone_key, start_time, run_date)
	)`,
	`CREATE TABLE IF NOT EXISTS actual_runs (
		zone_key         TEXT NOT NULL,
		zone_id          TEXT NOT NULL DEFAULT '',
		zone_name        TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMPTZ NOT NULL,
		run_date         TEXT NOT NULL,
		duration_minutes DOUBLE PRECISION NOT NULL,
		actual_gallons   DOUBLE PRECISION,
		status           TEXT NOT NULL DEFAULT '',
		failure_reason   TEXT,
		notes            TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (zone_key, start_time, run_date)
	)`,
	`CREATE TABLE IF NOT EXISTS collection_cycles (
		id                  BIGSERIAL PRIMARY KEY,
		cycle_type          TEXT NOT NULL,
		triggered_at        TIMESTAMPTZ NOT NULL,
		finished_at         TIMESTAMPTZ NOT NULL,
		outcome             TEXT NOT NULL,
		failure_kind        TEXT NOT NULL DEFAULT '',
		scheduled_collected INTEGER NOT NULL DEFAULT 0,
		actual_collected    INTEGER NOT NULL DEFAULT 0,
		scheduled_stored    INTEGER NOT NULL DEFAULT 0,
		actual_stored       INTEGER NOT NULL DEFAULT 0,
		alerts_raised       INTEGER NOT NULL DEFAULT 0,
		errors_json         TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS collection_cycle_dates (
		cycle_id    BIGINT NOT NULL REFERENCES collection_cycles(id),
		target_date TEXT NOT NULL,
		PRIMARY KEY (cycle_id, target_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycle_dates_date ON collection_cycle_dates(target_date)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id                      TEXT PRIMARY KEY,
		condition_id            TEXT NOT NULL,
		zone_id                 TEXT NOT NULL DEFAULT '',
		zone_name               TEXT NOT NULL DEFAULT '',
		failure_type            TEXT NOT NULL,
		severity                TEXT NOT NULL,
		description             TEXT NOT NULL,
		action                  TEXT NOT NULL,
		run_start               TIMESTAMPTZ NOT NULL,
		run_date                TEXT NOT NULL,
		scheduled_minutes       DOUBLE PRECISION,
		actual_minutes          DOUBLE PRECISION,
		expected_gallons        DOUBLE PRECISION,
		actual_gallons          DOUBLE PRECISION,
		deficit_gallons         DOUBLE PRECISION,
		plant_risk              TEXT NOT NULL DEFAULT '',
		max_hours_without_water INTEGER NOT NULL DEFAULT 0,
		detected_at             TIMESTAMPTZ NOT NULL,
		acknowledged            BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_at         TIMESTAMPTZ,
		resolved_at             TIMESTAMPTZ,
		supersedes_id           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_condition ON alerts(condition_id, detected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_run_date ON alerts(run_date)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_runs (
		zone_key         TEXT NOT NULL,
		zone_id          TEXT NOT NULL DEFAULT '',
		zone_name        TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMP NOT NULL,
		run_date         TEXT NOT NULL,
		duration_minutes REAL NOT NULL,
		expected_gallons REAL,
		notes            TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (zone_key, start_time, run_date)
	)`,
	`CREATE TABLE IF NOT EXISTS actual_runs (
		zone_key         TEXT NOT NULL,
		zone_id          TEXT NOT NULL DEFAULT '',
		zone_name        TEXT NOT NULL DEFAULT '',
		start_time       TIMESTAMP NOT NULL,
		run_date         TEXT NOT NULL,
		duration_minutes REAL NOT NULL,
		actual_gallons   REAL,
		status           TEXT NOT NULL DEFAULT '',
		failure_reason   TEXT,
		notes            TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (zone_key, start_time, run_date)
	)`,
	`CREATE TABLE IF NOT EXISTS collection_cycles (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_type          TEXT NOT NULL,
		triggered_at        TIMESTAMP NOT NULL,
		finished_at         TIMESTAMP NOT NULL,
		outcome             TEXT NOT NULL,
		failure_kind        TEXT NOT NULL DEFAULT '',
		scheduled_collected INTEGER NOT NULL DEFAULT 0,
		actual_collected    INTEGER NOT NULL DEFAULT 0,
		scheduled_stored    INTEGER NOT NULL DEFAULT 0,
		actual_stored       INTEGER NOT NULL DEFAULT 0,
		alerts_raised       INTEGER NOT NULL DEFAULT 0,
		errors_json         TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS collection_cycle_dates (
		cycle_id    INTEGER NOT NULL REFERENCES collection_cycles(id),
		target_date TEXT NOT NULL,
		PRIMARY KEY (cycle_id, target_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycle_dates_date ON collection_cycle_dates(target_date)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id                      TEXT PRIMARY KEY,
		condition_id            TEXT NOT NULL,
		zone_id                 TEXT NOT NULL DEFAULT '',
		zone_name               TEXT NOT NULL DEFAULT '',
		failure_type            TEXT NOT NULL,
		severity                TEXT NOT NULL,
		description             TEXT NOT NULL,
		action                  TEXT NOT NULL,
		run_start               TIMESTAMP NOT NULL,
		run_date                TEXT NOT NULL,
		scheduled_minutes       REAL,
		actual_minutes          REAL,
		expected_gallons        REAL,
		actual_gallons          REAL,
		deficit_gallons         REAL,
		plant_risk              TEXT NOT NULL DEFAULT '',
		max_hours_without_water INTEGER NOT NULL DEFAULT 0,
		detected_at             TIMESTAMP NOT NULL,
		acknowledged            BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_at         TIMESTAMP,
		resolved_at             TIMESTAMP,
		supersedes_id           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_condition ON alerts(condition_id, detected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_run_date ON alerts(run_date)`,
}
