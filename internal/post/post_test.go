package post

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelKeyRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   ChannelID
		key  string
	}{
		{name: "numeric", in: NumericChannel(-1001234567890), key: "-1001234567890"},
		{name: "handle", in: HandleChannel("neon"), key: "@neon"},
		{name: "handle with at", in: HandleChannel("@neon"), key: "@neon"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.key, tt.in.String())
			got, err := ParseChannelKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestParseChannelKeyRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "@", "abc", "0"} {
		_, err := ParseChannelKey(raw)
		assert.ErrorIs(t, err, ErrInvalidChannel, "raw=%q", raw)
	}
}

func TestDraftComplete(t *testing.T) {
	t.Parallel()
	full := &Draft{
		Thumbnail: &Media{Kind: MediaImage, Handle: "file-1"},
		Link:      "https://example.com/v",
		Title:     "Episode 1",
	}
	assert.True(t, full.Complete())
	assert.Empty(t, full.Missing())

	var nilDraft *Draft
	assert.False(t, nilDraft.Complete())
	assert.Equal(t, "draft", nilDraft.Missing())

	noThumb := full.Clone()
	noThumb.Thumbnail = nil
	assert.False(t, noThumb.Complete())
	assert.Equal(t, "thumbnail", noThumb.Missing())

	badKind := full.Clone()
	badKind.Thumbnail.Kind = "sticker"
	assert.False(t, badKind.Complete())

	noTitle := full.Clone()
	noTitle.Title = "  "
	assert.Equal(t, "title", noTitle.Missing())

	// Clone must not alias the thumbnail.
	assert.Equal(t, MediaImage, full.Thumbnail.Kind)
}

func TestScheduleEntryClock(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "09:05", ScheduleEntry{Hour: 9, Minute: 5}.Clock())
	assert.Equal(t, "23:59", ScheduleEntry{Hour: 23, Minute: 59}.Clock())
}

func TestFailureLabel(t *testing.T) {
	t.Parallel()
	var out Outcome
	out.Fail(ChannelID{}, Unknown, "no channels")
	out.Fail(NumericChannel(100), PermissionDenied, "not a member")
	out.Succeeded = 2

	assert.Equal(t, "N/A", out.Failures[0].Label())
	assert.Equal(t, "100", out.Failures[1].Label())
	assert.Equal(t, 4, out.Attempted())
}

func TestUserLocksSerializePerUser(t *testing.T) {
	t.Parallel()
	locks := NewUserLocks()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Do(42, func() {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxInside) {
					atomic.StoreInt32(&maxInside, n)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	assert.Zero(t, locks.size())
}

func TestUserLocksIndependentUsers(t *testing.T) {
	t.Parallel()
	locks := NewUserLocks()
	unlockA := locks.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		locks.Do(2, func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for user 2 blocked on user 1")
	}
}
