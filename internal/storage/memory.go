package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"postbot/internal/post"
)

// auditKeep bounds the in-memory audit trail.
const auditKeep = 1000

type memoryStore struct {
	mu        sync.Mutex
	closed    bool
	channels  map[int64][]post.ChannelID
	sessions  map[int64]Session
	schedules map[string]post.ScheduleEntry
	audit     []AuditEntry
}

func NewMemory() Store { return newMemory() }

func newMemory() *memoryStore {
	return &memoryStore{
		channels:  map[int64][]post.ChannelID{},
		sessions:  map[int64]Session{},
		schedules: map[string]post.ScheduleEntry{},
	}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Channels(_ context.Context, user int64) ([]post.ChannelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.channels[user]), nil
}

func (s *memoryStore) AddChannel(_ context.Context, user int64, ch post.ChannelID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addChannelLocked(user, ch)
}

func (s *memoryStore) addChannelLocked(user int64, ch post.ChannelID) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if ch.IsZero() {
		return false, post.ErrInvalidChannel
	}
	if slices.Contains(s.channels[user], ch) {
		return false, nil
	}
	s.channels[user] = append(s.channels[user], ch)
	return true, nil
}

func (s *memoryStore) RemoveChannel(_ context.Context, user int64, ch post.ChannelID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeChannelLocked(user, ch)
}

func (s *memoryStore) removeChannelLocked(user int64, ch post.ChannelID) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	list := s.channels[user]
	i := slices.Index(list, ch)
	if i < 0 {
		return false, nil
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(s.channels, user)
	} else {
		s.channels[user] = list
	}
	return true, nil
}

func (s *memoryStore) Session(_ context.Context, user int64) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Session{}, false, ErrClosed
	}
	sess, ok := s.sessions[user]
	if ok {
		sess.Draft = *sess.Draft.Clone()
	}
	return sess, ok, nil
}

func (s *memoryStore) PutSession(_ context.Context, user int64, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSessionLocked(user, sess)
}

func (s *memoryStore) putSessionLocked(user int64, sess Session) error {
	if s.closed {
		return ErrClosed
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	sess.Draft = *sess.Draft.Clone()
	s.sessions[user] = sess
	return nil
}

func (s *memoryStore) DeleteSession(_ context.Context, user int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.sessions, user)
	return nil
}

func (s *memoryStore) PutSchedule(_ context.Context, e post.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e.Draft = *e.Draft.Clone()
	s.schedules[e.ID] = e
	return nil
}

func (s *memoryStore) DeleteSchedule(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.schedules[id]; !ok {
		return false, nil
	}
	delete(s.schedules, id)
	return true, nil
}

func (s *memoryStore) ListSchedules(_ context.Context, owner int64) ([]post.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]post.ScheduleEntry, 0, len(s.schedules))
	for _, e := range s.schedules {
		if owner != 0 && e.Owner != owner {
			continue
		}
		e.Draft = *e.Draft.Clone()
		out = append(out, e)
	}
	sortSchedules(out)
	return out, nil
}

func sortSchedules(out []post.ScheduleEntry) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (s *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.audit = append(s.audit, e)
	if over := len(s.audit) - auditKeep; over > 0 {
		s.audit = slices.Delete(s.audit, 0, over)
	}
	return nil
}
