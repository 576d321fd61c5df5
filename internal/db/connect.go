package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch Driver(normalize(string(driver))) {
	case DriverSQLite:
		driver = DriverSQLite
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:teameval.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		driver = DriverPostgres
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/teameval?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return db, nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("commit: %w", e)
		}
	}()
	err = fn(tx)
	return
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// single writer; a larger pool only produces SQLITE_BUSY
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func normalize(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "pg", "pgsql", "pgx", "postgresql":
		return string(DriverPostgres)
	case "sqlite3":
		return string(DriverSQLite)
	}
	return d
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  settings_json TEXT NOT NULL,
  minimum_deadline INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  eval_id TEXT NOT NULL,
  type TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  config_json TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_eval ON questions(eval_id, ordinal);

CREATE TABLE IF NOT EXISTS responses (
  eval_id TEXT NOT NULL,
  question_id TEXT NOT NULL,
  rater_id TEXT NOT NULL,
  marks_json TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (question_id, rater_id)
);
CREATE INDEX IF NOT EXISTS idx_responses_eval ON responses(eval_id);

CREATE TABLE IF NOT EXISTS releases (
  eval_id TEXT NOT NULL,
  level TEXT NOT NULL,
  target TEXT NOT NULL DEFAULT '',
  released_at INTEGER NOT NULL,
  PRIMARY KEY (eval_id, level, target)
);

CREATE TABLE IF NOT EXISTS roster_users (
  eval_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  visible BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (eval_id, user_id)
);

CREATE TABLE IF NOT EXISTS roster_groups (
  eval_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  PRIMARY KEY (eval_id, group_id)
);

CREATE TABLE IF NOT EXISTS roster_members (
  eval_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (eval_id, group_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., ResponseSubmitted
  key TEXT NOT NULL,                         -- natural key: evaluation id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gradebook_links (
  eval_id TEXT PRIMARY KEY,
  lineitems_url TEXT NOT NULL,
  resource_link_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  eval_id TEXT PRIMARY KEY,
  label TEXT NOT NULL,
  score_max REAL NOT NULL,
  line_item_url TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lti_user_map (
  local_user_id TEXT PRIMARY KEY,
  platform_sub TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS grade_sync_status (
  eval_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (eval_id, user_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  settings_json TEXT NOT NULL,
  minimum_deadline BIGINT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  eval_id TEXT NOT NULL,
  type TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  config_json TEXT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_eval ON questions(eval_id, ordinal);

CREATE TABLE IF NOT EXISTS responses (
  eval_id TEXT NOT NULL,
  question_id TEXT NOT NULL,
  rater_id TEXT NOT NULL,
  marks_json TEXT NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (question_id, rater_id)
);
CREATE INDEX IF NOT EXISTS idx_responses_eval ON responses(eval_id);

CREATE TABLE IF NOT EXISTS releases (
  eval_id TEXT NOT NULL,
  level TEXT NOT NULL,
  target TEXT NOT NULL DEFAULT '',
  released_at BIGINT NOT NULL,
  PRIMARY KEY (eval_id, level, target)
);

CREATE TABLE IF NOT EXISTS roster_users (
  eval_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  visible BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (eval_id, user_id)
);

CREATE TABLE IF NOT EXISTS roster_groups (
  eval_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  PRIMARY KEY (eval_id, group_id)
);

CREATE TABLE IF NOT EXISTS roster_members (
  eval_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (eval_id, group_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS gradebook_links (
  eval_id TEXT PRIMARY KEY,
  lineitems_url TEXT NOT NULL,
  resource_link_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  eval_id TEXT PRIMARY KEY,
  label TEXT NOT NULL,
  score_max NUMERIC NOT NULL,
  line_item_url TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lti_user_map (
  local_user_id TEXT PRIMARY KEY,
  platform_sub TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS grade_sync_status (
  eval_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries INT NOT NULL DEFAULT 0,
  last_error TEXT,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (eval_id, user_id)
);
`
