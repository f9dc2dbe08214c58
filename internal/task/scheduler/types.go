package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/eventbus"
	logx "postbot/pkg/logx"
)

const (
	DefaultTimezone    = "Asia/Kolkata"
	defaultHistorySize = 50
)

type Config struct {
	Enabled     bool
	Timezone    string // IANA name; empty means DefaultTimezone
	JobTimeout  time.Duration
	HistorySize int
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	runs    uint64
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*scheduleDef

	// base is canceled by Stop; every run derives from it.
	base       context.Context
	baseCancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Runs    uint64
	LastErr string
}

type HistoryItem struct {
	Name      string
	StartedAt time.Time
	Duration  time.Duration
	Err       string
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
