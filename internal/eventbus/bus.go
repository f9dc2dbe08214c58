// Package eventbus is an in-process fanout for lifecycle signals such as
// finished broadcasts and schedule fires. Metrics and the audit trail
// consume it; nothing on the posting path waits on it.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by postbot components.
const (
	TopicBroadcastCompleted = "broadcast.completed"
	TopicScheduleRun        = "schedule.run"
	TopicScheduleChanged    = "schedule.changed"
	TopicChannelChanged     = "channel.changed"
	TopicConfigReloaded     = "config.reloaded"
)

// Event carries a small payload. Publish never blocks; a subscriber whose
// buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// BroadcastCompleted is the payload of TopicBroadcastCompleted.
type BroadcastCompleted struct {
	Owner     int64
	Trigger   string // "now" or "schedule"
	Succeeded int
	// Failed counts failures per category name.
	Failed   map[string]int
	Duration time.Duration
}

// ScheduleRun is the payload of TopicScheduleRun.
type ScheduleRun struct {
	ID       string
	Duration time.Duration
	Err      error
}

// Counted is the payload of TopicScheduleChanged and TopicChannelChanged:
// the owner's total after the change.
type Counted struct {
	Owner int64
	Total int
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// Publish holds the read lock while offering e so unsubscribe cannot close
// a channel mid-send.
func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full. Zero for buses not created by New.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
