package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/broadcast"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
)

type fakeTrigger struct {
	mu   sync.Mutex
	loc  *time.Location
	jobs map[string]scheduler.Job
	at   map[string][2]int
	err  error
}

func newFakeTrigger() *fakeTrigger {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	if loc == nil {
		loc = time.UTC
	}
	return &fakeTrigger{loc: loc, jobs: map[string]scheduler.Job{}, at: map[string][2]int{}}
}

func (f *fakeTrigger) AddDaily(name string, hour, minute int, _ time.Duration, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs[name] = job
	f.at[name] = [2]int{hour, minute}
	return nil
}

func (f *fakeTrigger) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	delete(f.jobs, name)
	return ok
}

func (f *fakeTrigger) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc
}

func (f *fakeTrigger) setLocation(loc *time.Location) {
	f.mu.Lock()
	f.loc = loc
	f.mu.Unlock()
}

func (f *fakeTrigger) job(name string) scheduler.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[name]
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []post.Draft
	owners []int64
	out    post.Outcome
}

func (f *fakeEngine) BroadcastFor(_ context.Context, user int64, draft *post.Draft, trigger broadcast.Trigger) post.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *draft)
	f.owners = append(f.owners, user)
	return f.out
}

func sampleDraft() *post.Draft {
	return &post.Draft{
		Thumbnail: &post.Media{Kind: post.MediaImage, Handle: "file-1"},
		Link:      "https://example.com/v",
		Title:     "Episode 1",
	}
}

func TestScheduleRegistersSnapshot(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	trig := newFakeTrigger()
	eng := &fakeEngine{out: post.Outcome{Succeeded: 2}}
	r := New(store, trig, eng)

	d := sampleDraft()
	e, err := r.Schedule(context.Background(), 42, d, 9, 30)
	require.NoError(t, err)
	assert.Regexp(t, `^post_42_[0-9a-f]{12}$`, e.ID)
	assert.Equal(t, "09:30", e.Clock())
	assert.Equal(t, trig.loc.String(), e.Timezone)
	assert.Equal(t, [2]int{9, 30}, trig.at[e.ID])

	// Later edits to the working draft do not reach the entry.
	d.Title = "changed"
	require.NoError(t, trig.job(e.ID)(context.Background()))
	require.Len(t, eng.calls, 1)
	assert.Equal(t, "Episode 1", eng.calls[0].Title)
	assert.Equal(t, int64(42), eng.owners[0])
}

func TestScheduleRejects(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), newFakeTrigger(), &fakeEngine{})

	_, err := r.Schedule(context.Background(), 1, &post.Draft{Link: "https://x"}, 9, 0)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = r.Schedule(context.Background(), 1, sampleDraft(), 24, 0)
	assert.ErrorIs(t, err, scheduler.ErrInvalidTime)

	_, err = r.Schedule(context.Background(), 1, sampleDraft(), 9, 60)
	assert.ErrorIs(t, err, scheduler.ErrInvalidTime)
}

func TestScheduleRollsBackWhenArmFails(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	trig := newFakeTrigger()
	trig.err = assert.AnError
	r := New(store, trig, &fakeEngine{})

	_, err := r.Schedule(context.Background(), 1, sampleDraft(), 9, 0)
	require.ErrorIs(t, err, assert.AnError)

	list, err := r.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnscheduleChecksOwner(t *testing.T) {
	t.Parallel()
	trig := newFakeTrigger()
	r := New(storage.NewMemory(), trig, &fakeEngine{})
	ctx := context.Background()

	e, err := r.Schedule(ctx, 1, sampleDraft(), 8, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Unschedule(ctx, 2, e.ID), ErrNotFound)
	assert.NotNil(t, trig.job(e.ID))

	require.NoError(t, r.Unschedule(ctx, 1, e.ID))
	assert.Nil(t, trig.job(e.ID))
	assert.ErrorIs(t, r.Unschedule(ctx, 1, e.ID), ErrNotFound)
}

func TestListIsPerOwner(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), newFakeTrigger(), &fakeEngine{})
	ctx := context.Background()

	_, err := r.Schedule(ctx, 1, sampleDraft(), 8, 0)
	require.NoError(t, err)
	_, err = r.Schedule(ctx, 1, sampleDraft(), 20, 15)
	require.NoError(t, err)
	_, err = r.Schedule(ctx, 2, sampleDraft(), 7, 0)
	require.NoError(t, err)

	mine, err := r.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, e := range mine {
		assert.Equal(t, int64(1), e.Owner)
	}
}

func TestEntriesFollowTimezoneChanges(t *testing.T) {
	t.Parallel()
	trig := newFakeTrigger()
	trig.setLocation(time.FixedZone("UTC+5", 5*60*60))
	var fired post.ScheduleEntry
	r := New(storage.NewMemory(), trig, &fakeEngine{}, WithOnFired(func(_ context.Context, e post.ScheduleEntry, _ post.Outcome) {
		fired = e
	}))
	ctx := context.Background()

	e, err := r.Schedule(ctx, 1, sampleDraft(), 9, 0)
	require.NoError(t, err)
	assert.Equal(t, "UTC+5", e.Timezone)

	trig.setLocation(time.FixedZone("UTC-3", -3*60*60))

	list, err := r.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "UTC-3", list[0].Timezone)

	require.NoError(t, trig.job(e.ID)(ctx))
	assert.Equal(t, "UTC-3", fired.Timezone)
}

func TestRestoreRearmsStoredEntries(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	ctx := context.Background()

	first := New(store, newFakeTrigger(), &fakeEngine{})
	e, err := first.Schedule(ctx, 5, sampleDraft(), 6, 45)
	require.NoError(t, err)

	trig := newFakeTrigger()
	second := New(store, trig, &fakeEngine{})
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [2]int{6, 45}, trig.at[e.ID])
}

func TestFireNotifiesAndReportsTotalFailure(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	eng.out.Fail(post.NumericChannel(-100), post.PermissionDenied, "not a member")

	var got post.Outcome
	var fired post.ScheduleEntry
	r := New(storage.NewMemory(), newFakeTrigger(), eng, WithOnFired(func(_ context.Context, e post.ScheduleEntry, out post.Outcome) {
		fired, got = e, out
	}))
	e := post.ScheduleEntry{ID: "post_1_x", Owner: 1, Draft: *sampleDraft()}

	err := r.Fire(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member")
	assert.Equal(t, "post_1_x", fired.ID)
	assert.Len(t, got.Failures, 1)
}

func TestScheduleChangesArePublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	t.Cleanup(unsub)
	r := New(storage.NewMemory(), newFakeTrigger(), &fakeEngine{}, WithBus(bus))

	_, err := r.Schedule(context.Background(), 3, sampleDraft(), 1, 1)
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, eventbus.TopicScheduleChanged, ev.Type)
	assert.Equal(t, eventbus.Counted{Owner: 3, Total: 1}, ev.Data)
}
