// Package persistence stores finished run reports and their event logs in
// SQLite.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/engine"
)

// timeLayout sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run ID has no stored report.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		sim_seconds REAL NOT NULL,
		seed INTEGER NOT NULL,
		policy TEXT NOT NULL,
		spawned INTEGER NOT NULL,
		evacuated INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		slowed INTEGER NOT NULL,
		fire_started INTEGER NOT NULL,
		last_evacuation REAL NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		tick INTEGER NOT NULL,
		time REAL NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		agent INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID          string    `db:"run_id" json:"run_id"`
	StartedAt      time.Time `db:"-" json:"started_at"`
	EndedAt        time.Time `db:"-" json:"ended_at"`
	Ticks          uint64    `db:"ticks" json:"ticks"`
	SimSeconds     float64   `db:"sim_seconds" json:"sim_seconds"`
	Seed           int64     `db:"seed" json:"seed"`
	Policy         string    `db:"policy" json:"density_policy"`
	Spawned        int       `db:"spawned" json:"spawned"`
	Evacuated      int       `db:"evacuated" json:"evacuated"`
	Removed        int       `db:"removed" json:"removed"`
	Slowed         int       `db:"slowed" json:"slowed"`
	FireStarted    bool      `db:"fire_started" json:"fire_started"`
	LastEvacuation float64   `db:"last_evacuation" json:"last_evacuation"`

	StartedRaw string `db:"started_at" json:"-"`
	EndedRaw   string `db:"ended_at" json:"-"`
	StatsJSON  string `db:"stats_json" json:"-"`
}

func (r *RunSummary) decodeTimes() {
	r.StartedAt, _ = time.Parse(timeLayout, r.StartedRaw)
	r.EndedAt, _ = time.Parse(timeLayout, r.EndedRaw)
}

type eventRow struct {
	Tick        uint64  `db:"tick"`
	Time        float64 `db:"time"`
	Description string  `db:"description"`
	Category    string  `db:"category"`
	Agent       uint64  `db:"agent"`
}

func (e eventRow) event() engine.Event {
	return engine.Event{
		Tick:        e.Tick,
		Time:        e.Time,
		Description: e.Description,
		Category:    e.Category,
		Agent:       agents.AgentID(e.Agent),
	}
}

// SaveRun writes a run report and its events. Saving the same run again
// replaces the earlier copy.
func (db *DB) SaveRun(r engine.RunReport) error {
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_events WHERE run_id = ?", r.RunID); err != nil {
		return err
	}
	fire := 0
	if r.Stats.FireStarted {
		fire = 1
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, started_at, ended_at, ticks, sim_seconds, seed, policy,
		 spawned, evacuated, removed, slowed, fire_started, last_evacuation, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.UTC().Format(timeLayout), r.EndedAt.UTC().Format(timeLayout),
		r.Ticks, r.SimSeconds, r.Seed, r.Policy,
		r.Stats.Spawned, r.Stats.Evacuated, r.Stats.Removed, r.Stats.Slowed,
		fire, r.Stats.LastEvacuation, string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(r.Events) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO run_events
			(run_id, tick, time, description, category, agent) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range r.Events {
			if _, err := stmt.Exec(r.RunID, e.Tick, e.Time, e.Description, e.Category, uint64(e.Agent)); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "run", r.RunID, "events", len(r.Events), "evacuated", r.Stats.Evacuated)
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunSummary
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY started_at DESC, run_id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].decodeTimes()
	}
	return runs, nil
}

// GetRun loads a stored report including its events.
func (db *DB) GetRun(runID string) (engine.RunReport, error) {
	var row RunSummary
	err := db.conn.Get(&row, "SELECT * FROM runs WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return engine.RunReport{}, err
	}
	row.decodeTimes()

	r := engine.RunReport{
		RunID:      row.RunID,
		StartedAt:  row.StartedAt,
		EndedAt:    row.EndedAt,
		Ticks:      row.Ticks,
		SimSeconds: row.SimSeconds,
		Seed:       row.Seed,
		Policy:     row.Policy,
	}
	if err := json.Unmarshal([]byte(row.StatsJSON), &r.Stats); err != nil {
		return r, fmt.Errorf("decode stats: %w", err)
	}

	var rows []eventRow
	if err := db.conn.Select(&rows,
		"SELECT tick, time, description, category, agent FROM run_events WHERE run_id = ? ORDER BY id",
		runID); err != nil {
		return r, err
	}
	r.Events = make([]engine.Event, 0, len(rows))
	for _, e := range rows {
		r.Events = append(r.Events, e.event())
	}
	return r, nil
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, time, description, category, agent FROM run_events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(rows))
	for _, e := range rows {
		events = append(events, e.event())
	}
	return events, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
