package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

// fileStore keeps state in memory and rewrites a JSON snapshot after every
// mutation (tmp file + rename). Audit entries go to an append-only JSON
// Lines file.
//
// Files, for Path "data/postbot.json":
//   - data/postbot.json        (snapshot)
//   - data/postbot.audit.jsonl (audit trail)
type fileStore struct {
	*memoryStore
	log logx.Logger

	// wmu serializes snapshot writes; memoryStore.mu is never held across I/O.
	wmu          sync.Mutex
	snapshotPath string
	auditFile    *os.File
}

type fileSnapshot struct {
	Channels  map[int64][]post.ChannelID `json:"channels"`
	Sessions  map[int64]Session          `json:"sessions"`
	Schedules []post.ScheduleEntry       `json:"schedules"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	prefix := strings.TrimSuffix(path, filepath.Ext(path))

	mem := newMemory()
	if err := loadSnapshot(path, mem); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	log.Info("file store opened", logx.String("path", path), logx.Int("schedules", len(mem.schedules)))
	return &fileStore{memoryStore: mem, log: log, snapshotPath: path, auditFile: af}, nil
}

func loadSnapshot(path string, into *memoryStore) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	for u, list := range snap.Channels {
		into.channels[u] = list
	}
	for u, s := range snap.Sessions {
		into.sessions[u] = s
	}
	for _, e := range snap.Schedules {
		into.schedules[e.ID] = e
	}
	return nil
}

func (s *fileStore) persist() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	snap := fileSnapshot{
		Channels:  make(map[int64][]post.ChannelID, len(s.channels)),
		Sessions:  make(map[int64]Session, len(s.sessions)),
		Schedules: make([]post.ScheduleEntry, 0, len(s.schedules)),
	}
	for u, list := range s.channels {
		snap.Channels[u] = append([]post.ChannelID(nil), list...)
	}
	for u, sess := range s.sessions {
		snap.Sessions[u] = sess
	}
	for _, e := range s.schedules {
		snap.Schedules = append(snap.Schedules, e)
	}
	s.mu.Unlock()
	sortSchedules(snap.Schedules)

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// after persists when the in-memory mutation succeeded and changed something.
func (s *fileStore) after(changed bool, err error) error {
	if err != nil || !changed {
		return err
	}
	if perr := s.persist(); perr != nil {
		s.log.Error("snapshot write failed", logx.Err(perr))
		return perr
	}
	return nil
}

func (s *fileStore) AddChannel(ctx context.Context, user int64, ch post.ChannelID) (bool, error) {
	added, err := s.memoryStore.AddChannel(ctx, user, ch)
	return added, s.after(added, err)
}

func (s *fileStore) RemoveChannel(ctx context.Context, user int64, ch post.ChannelID) (bool, error) {
	removed, err := s.memoryStore.RemoveChannel(ctx, user, ch)
	return removed, s.after(removed, err)
}

func (s *fileStore) PutSession(ctx context.Context, user int64, sess Session) error {
	return s.after(true, s.memoryStore.PutSession(ctx, user, sess))
}

func (s *fileStore) DeleteSession(ctx context.Context, user int64) error {
	return s.after(true, s.memoryStore.DeleteSession(ctx, user))
}

func (s *fileStore) PutSchedule(ctx context.Context, e post.ScheduleEntry) error {
	return s.after(true, s.memoryStore.PutSchedule(ctx, e))
}

func (s *fileStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	ok, err := s.memoryStore.DeleteSchedule(ctx, id)
	return ok, s.after(ok, err)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := s.memoryStore.AppendAudit(ctx, e); err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	_ = s.memoryStore.Close()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
