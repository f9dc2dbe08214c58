// Package storage persists per-user channels, wizard sessions, schedules
// and the audit trail behind one injectable Store.
//
// Drivers:
//   - "memory" (default): process lifetime only
//   - "file": memory plus a JSON snapshot and an audit.jsonl next to Path
//   - "sqlite": a SQLite database at Path with versioned migrations
package storage

import (
	"context"
	"errors"
	"time"

	"postbot/internal/post"
)

var (
	ErrClosed = errors.New("storage: closed")
	ErrDriver = errors.New("storage: unknown driver")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// ChannelStore keeps each user's channels in insertion order, each at most once.
type ChannelStore interface {
	Channels(ctx context.Context, user int64) ([]post.ChannelID, error)
	AddChannel(ctx context.Context, user int64, ch post.ChannelID) (added bool, err error)
	RemoveChannel(ctx context.Context, user int64, ch post.ChannelID) (removed bool, err error)
}

// Session is one user's wizard progress. Step is owned by the wizard.
type Session struct {
	Step      string     `json:"step"`
	Draft     post.Draft `json:"draft"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type DraftStore interface {
	Session(ctx context.Context, user int64) (Session, bool, error)
	PutSession(ctx context.Context, user int64, s Session) error
	DeleteSession(ctx context.Context, user int64) error
}

type ScheduleStore interface {
	PutSchedule(ctx context.Context, e post.ScheduleEntry) error
	DeleteSchedule(ctx context.Context, id string) (bool, error)
	// ListSchedules returns owner's entries oldest first; owner 0 lists all.
	ListSchedules(ctx context.Context, owner int64) ([]post.ScheduleEntry, error)
}

// AuditEntry records one user-visible action.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Actor  int64     `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	OK     int       `json:"ok"`
	Fail   int       `json:"fail"`
	Error  string    `json:"error,omitempty"`
	TookMS int64     `json:"took_ms"`
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

type Store interface {
	ChannelStore
	DraftStore
	ScheduleStore
	AuditStore
	Close() error
}
