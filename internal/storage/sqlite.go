package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial",
		SQL: `
CREATE TABLE channels (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	owner      INTEGER NOT NULL,
	channel    TEXT    NOT NULL,
	added_at   TEXT    NOT NULL,
	UNIQUE(owner, channel)
);
CREATE TABLE sessions (
	owner      INTEGER PRIMARY KEY,
	step       TEXT NOT NULL,
	draft      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE schedules (
	id         TEXT PRIMARY KEY,
	owner      INTEGER NOT NULL,
	hour       INTEGER NOT NULL,
	minute     INTEGER NOT NULL,
	timezone   TEXT    NOT NULL,
	draft      TEXT    NOT NULL,
	created_at TEXT    NOT NULL
);
CREATE INDEX schedules_owner ON schedules(owner);
CREATE TABLE audit (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TEXT    NOT NULL,
	actor   INTEGER NOT NULL,
	action  TEXT    NOT NULL,
	target  TEXT,
	ok      INTEGER NOT NULL,
	fail    INTEGER NOT NULL,
	err     TEXT,
	took_ms INTEGER NOT NULL
);`,
	},
}

// timeLayout has fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// openSQLite opens or creates the database at cfg.Path. ":memory:" is
// accepted for tests.
func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writers are serialized and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	for _, m := range migrations {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&n); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if n > 0 {
			continue
		}
		s.log.Info("applying migration", logx.Int("version", m.Version), logx.String("name", m.Name))
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Channels(ctx context.Context, user int64) ([]post.ChannelID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel FROM channels WHERE owner = ? ORDER BY seq`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []post.ChannelID
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		ch, err := post.ParseChannelKey(key)
		if err != nil {
			s.log.Warn("skipping malformed channel row", logx.Int64("owner", user), logx.String("channel", key))
			continue
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddChannel(ctx context.Context, user int64, ch post.ChannelID) (bool, error) {
	if ch.IsZero() {
		return false, post.ErrInvalidChannel
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(owner, channel, added_at) VALUES(?,?,?) ON CONFLICT(owner, channel) DO NOTHING`,
		user, ch.String(), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) RemoveChannel(ctx context.Context, user int64, ch post.ChannelID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE owner = ? AND channel = ?`, user, ch.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) Session(ctx context.Context, user int64) (Session, bool, error) {
	var (
		sess    Session
		draft   string
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT step, draft, updated_at FROM sessions WHERE owner = ?`, user).
		Scan(&sess.Step, &draft, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	if err := json.Unmarshal([]byte(draft), &sess.Draft); err != nil {
		return Session{}, false, fmt.Errorf("decode session draft: %w", err)
	}
	sess.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return sess, true, nil
}

func (s *sqliteStore) PutSession(ctx context.Context, user int64, sess Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	draft, err := json.Marshal(sess.Draft)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions(owner, step, draft, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(owner) DO UPDATE SET step=excluded.step, draft=excluded.draft, updated_at=excluded.updated_at`,
		user, sess.Step, string(draft), sess.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (s *sqliteStore) DeleteSession(ctx context.Context, user int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE owner = ?`, user)
	return err
}

func (s *sqliteStore) PutSchedule(ctx context.Context, e post.ScheduleEntry) error {
	draft, err := json.Marshal(e.Draft)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, owner, hour, minute, timezone, draft, created_at) VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET hour=excluded.hour, minute=excluded.minute, timezone=excluded.timezone, draft=excluded.draft`,
		e.ID, e.Owner, e.Hour, e.Minute, e.Timezone, string(draft), e.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ListSchedules(ctx context.Context, owner int64) ([]post.ScheduleEntry, error) {
	q := `SELECT id, owner, hour, minute, timezone, draft, created_at FROM schedules`
	var args []any
	if owner != 0 {
		q += ` WHERE owner = ?`
		args = append(args, owner)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []post.ScheduleEntry
	for rows.Next() {
		var (
			e       post.ScheduleEntry
			draft   string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Owner, &e.Hour, &e.Minute, &e.Timezone, &draft, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(draft), &e.Draft); err != nil {
			s.log.Warn("skipping schedule with bad draft", logx.String("id", e.ID), logx.Err(err))
			continue
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, action, target, ok, fail, err, took_ms) VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(timeLayout), e.Actor, e.Action, nullStr(e.Target), e.OK, e.Fail, nullStr(e.Error), e.TookMS)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
