package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"postbot/internal/post"
	kit "postbot/internal/transport"
)

func TestClassifyPlatformErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		category post.FailureCategory
		reason   string
	}{
		{
			name:     "forbidden",
			err:      &kit.PlatformError{Kind: kit.ErrKindForbidden, Code: 403, Description: "Forbidden: bot was kicked from the channel chat"},
			category: post.PermissionDenied,
			reason:   "bot is not admin or was removed",
		},
		{
			name:     "bad request",
			err:      &kit.PlatformError{Kind: kit.ErrKindBadRequest, Code: 400, Description: "Bad Request: wrong file identifier"},
			category: post.InvalidRequest,
			reason:   "invalid request: Bad Request: wrong file identifier",
		},
		{
			name:     "migrated with id",
			err:      &kit.PlatformError{Kind: kit.ErrKindMigrated, Code: 400, MigratedTo: -100777},
			category: post.ChatMigrated,
			reason:   "channel migrated to -100777; add it again",
		},
		{
			name:     "not found",
			err:      fmt.Errorf("send: %w", &kit.PlatformError{Kind: kit.ErrKindNotFound, Code: 400, Description: "Bad Request: chat not found"}),
			category: post.NotFound,
			reason:   "channel not found or bot removed",
		},
		{
			name:     "flood",
			err:      &kit.PlatformError{Kind: kit.ErrKindFlood, Code: 429, RetryAfter: 7},
			category: post.Unknown,
			reason:   "error: rate limited, retry after 7s",
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			category: post.Unknown,
			reason:   "error: timed out",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassifyUnknownIsBounded(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500)
	got := Classify(errors.New(long))

	assert.Equal(t, post.Unknown, got.Category)
	assert.True(t, strings.HasPrefix(got.Reason, "error: "))
	// 50 runes of detail plus the ellipsis.
	assert.Equal(t, len("error: ")+unknownReasonLimit+1, utf8.RuneCountInString(got.Reason))
}

func TestClassifyInvalidRequestIsBounded(t *testing.T) {
	t.Parallel()
	desc := "Bad Request: " + strings.Repeat("y", 400)
	got := Classify(&kit.PlatformError{Kind: kit.ErrKindBadRequest, Code: 400, Description: desc})

	assert.Equal(t, post.InvalidRequest, got.Category)
	assert.LessOrEqual(t, utf8.RuneCountInString(got.Reason), len("invalid request: ")+detailLimit+1)
}

func TestPanicResult(t *testing.T) {
	t.Parallel()
	got := Panic("boom")
	assert.Equal(t, post.Unknown, got.Category)
	assert.Equal(t, "error: internal failure: boom", got.Reason)
}
