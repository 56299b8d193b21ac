package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration represents one schema migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations, tracking them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns the applied versions.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_streaks", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_streak_recoveries", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_alert_flags", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "add_alert_streak_milestone", UpSQL: migration005Up, DownSQL: migration005Down},
		{Version: 6, Name: "add_achievement_rarity_unit", UpSQL: migration006Up, DownSQL: migration006Down},
	}
}

const migration001Up = `
CREATE TABLE user_streaks (
	user_id            TEXT PRIMARY KEY,
	current_streak     INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	total_streak       INTEGER NOT NULL DEFAULT 0 CHECK (total_streak >= current_streak),
	max_streak         INTEGER NOT NULL DEFAULT 0 CHECK (max_streak >= current_streak),
	last_activity_at   TIMESTAMPTZ,
	last_activity_day  INTEGER NOT NULL DEFAULT 0,
	timezone           TEXT NOT NULL DEFAULT 'UTC',
	phase              TEXT NOT NULL DEFAULT 'normal' CHECK (phase IN ('normal', 'at_risk')),
	recovery_deadline  TIMESTAMPTZ,
	version            BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Leaderboard reads order by streak value with user_id as tie-break.
CREATE INDEX idx_user_streaks_current ON user_streaks (current_streak DESC, user_id ASC);
CREATE INDEX idx_user_streaks_total ON user_streaks (total_streak DESC, user_id ASC);

-- The deadline sweeper scans only open at-risk rows.
CREATE INDEX idx_user_streaks_deadline ON user_streaks (recovery_deadline)
	WHERE phase = 'at_risk';
`

const migration001Down = `
DROP TABLE IF EXISTS user_streaks;
`

const migration002Up = `
CREATE TABLE streak_recoveries (
	id              UUID PRIMARY KEY,
	user_id         TEXT NOT NULL,
	action          TEXT NOT NULL DEFAULT 'recover',
	performed_at    TIMESTAMPTZ NOT NULL,
	restored_streak INTEGER NOT NULL
);

-- Eligibility checks count a user's recoveries inside a rolling window.
CREATE INDEX idx_streak_recoveries_user_time ON streak_recoveries (user_id, performed_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS streak_recoveries;
`

const migration003Up = `
CREATE TABLE achievement_definitions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	points        INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
	criteria_kind TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	target_count  INTEGER NOT NULL CHECK (target_count > 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_achievement_definitions_event ON achievement_definitions (event_type);

CREATE TABLE user_achievement_progress (
	user_id        TEXT NOT NULL,
	achievement_id TEXT NOT NULL REFERENCES achievement_definitions (id),
	count          INTEGER NOT NULL DEFAULT 0,
	unlocked_at    TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, achievement_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_achievement_progress;
DROP TABLE IF EXISTS achievement_definitions;
`

const migration004Up = `
CREATE TABLE alert_flags (
	user_id              TEXT PRIMARY KEY,
	show_recover_streak  BOOLEAN NOT NULL DEFAULT FALSE,
	show_reset_streak    BOOLEAN NOT NULL DEFAULT FALSE,
	pending_achievements TEXT[] NOT NULL DEFAULT '{}',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration004Down = `
DROP TABLE IF EXISTS alert_flags;
`

const migration005Up = `
ALTER TABLE alert_flags
	ADD COLUMN streak_milestone INTEGER NOT NULL DEFAULT 0 CHECK (streak_milestone >= 0);
`

const migration005Down = `
ALTER TABLE alert_flags DROP COLUMN streak_milestone;
`

const migration006Up = `
ALTER TABLE achievement_definitions
	ADD COLUMN rarity TEXT NOT NULL DEFAULT 'common',
	ADD COLUMN unit TEXT NOT NULL DEFAULT '';
`

const migration006Down = `
ALTER TABLE achievement_definitions
	DROP COLUMN rarity,
	DROP COLUMN unit;
`
