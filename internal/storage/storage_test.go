package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

// drivers opens a fresh store per driver so every behavior below is checked
// against all backends.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for name, cfg := range map[string]Config{
		"memory": {},
		"file":   {Driver: "file", Path: filepath.Join(dir, "state.json")},
		"sqlite": {Driver: "sqlite", Path: ":memory:"},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err, name)
		t.Cleanup(func() { _ = st.Close() })
		out[name] = st
	}
	return out
}

func sampleDraft() post.Draft {
	return post.Draft{
		Thumbnail: &post.Media{Kind: post.MediaVideo, Handle: "file-1"},
		Link:      "https://example.com/v",
		Title:     "Episode 1",
	}
}

func TestChannelsDedupAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			pub := post.HandleChannel("pub")
			num := post.NumericChannel(-100123)

			added, err := st.AddChannel(ctx, 1, num)
			require.NoError(t, err)
			assert.True(t, added)
			added, err = st.AddChannel(ctx, 1, pub)
			require.NoError(t, err)
			assert.True(t, added)
			added, err = st.AddChannel(ctx, 1, pub)
			require.NoError(t, err)
			assert.False(t, added)

			got, err := st.Channels(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []post.ChannelID{num, pub}, got)

			other, err := st.Channels(ctx, 2)
			require.NoError(t, err)
			assert.Empty(t, other)

			removed, err := st.RemoveChannel(ctx, 1, num)
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = st.RemoveChannel(ctx, 1, num)
			require.NoError(t, err)
			assert.False(t, removed)

			got, err = st.Channels(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []post.ChannelID{pub}, got)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := st.Session(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.PutSession(ctx, 7, Session{Step: "awaiting_title", Draft: sampleDraft()}))
			sess, ok, err := st.Session(ctx, 7)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "awaiting_title", sess.Step)
			assert.Equal(t, sampleDraft(), sess.Draft)
			assert.False(t, sess.UpdatedAt.IsZero())

			require.NoError(t, st.DeleteSession(ctx, 7))
			_, ok, err = st.Session(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSchedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			a := post.ScheduleEntry{ID: "post_1_a", Owner: 1, Hour: 9, Minute: 0, Timezone: "Asia/Kolkata", Draft: sampleDraft(), CreatedAt: base}
			b := post.ScheduleEntry{ID: "post_2_b", Owner: 2, Hour: 23, Minute: 59, Timezone: "Asia/Kolkata", Draft: sampleDraft(), CreatedAt: base.Add(time.Minute)}
			c := post.ScheduleEntry{ID: "post_1_c", Owner: 1, Hour: 12, Minute: 30, Timezone: "UTC", Draft: sampleDraft(), CreatedAt: base.Add(2 * time.Minute)}
			for _, e := range []post.ScheduleEntry{c, a, b} {
				require.NoError(t, st.PutSchedule(ctx, e))
			}

			mine, err := st.ListSchedules(ctx, 1)
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "post_1_a", mine[0].ID)
			assert.Equal(t, "post_1_c", mine[1].ID)
			assert.Equal(t, sampleDraft(), mine[0].Draft)
			assert.True(t, mine[0].CreatedAt.Equal(base))

			all, err := st.ListSchedules(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			ok, err := st.DeleteSchedule(ctx, "post_1_a")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = st.DeleteSchedule(ctx, "post_1_a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestAuditAppend(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{Actor: 1, Action: "broadcast", OK: 2, Fail: 1}))
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	_, err = st.AddChannel(ctx, 5, post.HandleChannel("keep"))
	require.NoError(t, err)
	require.NoError(t, st.PutSchedule(ctx, post.ScheduleEntry{ID: "s1", Owner: 5, Hour: 8, Draft: sampleDraft(), CreatedAt: time.Now()}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{Actor: 5, Action: "channel.add", Target: "@keep"}))
	require.NoError(t, st.Close())

	audit, err := os.ReadFile(strings.TrimSuffix(path, ".json") + ".audit.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"target":"@keep"`)

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	chans, err := st.Channels(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []post.ChannelID{post.HandleChannel("keep")}, chans)
	scheds, err := st.ListSchedules(ctx, 5)
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	assert.Equal(t, sampleDraft(), scheds[0].Draft)
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	t.Parallel()
	st, err := openSQLite(Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.migrate(context.Background()))
	var n int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(migrations), n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDriver)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestClosedMemoryStore(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	require.NoError(t, st.Close())
	_, err := st.Channels(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}
