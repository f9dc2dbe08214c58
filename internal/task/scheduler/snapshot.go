package scheduler

import (
	"sort"
)

// Snapshot reports registered schedules sorted by next fire time, then the
// most recent runs newest first.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Timezone: s.loc.String(),
	}
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Runs: d.runs, LastErr: d.lastErr}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	s.mu.Unlock()

	sort.Slice(snap.Schedules, func(i, j int) bool {
		a, b := snap.Schedules[i], snap.Schedules[j]
		if !a.Next.Equal(b.Next) {
			if a.Next.IsZero() || b.Next.IsZero() {
				return !a.Next.IsZero()
			}
			return a.Next.Before(b.Next)
		}
		return a.Name < b.Name
	})

	s.hmu.Lock()
	snap.History = make([]HistoryItem, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		snap.History = append(snap.History, s.history[i])
	}
	s.hmu.Unlock()
	return snap
}
