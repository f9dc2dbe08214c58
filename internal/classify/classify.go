// Package classify maps platform send/lookup failures onto the closed
// failure taxonomy used in broadcast reports.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postbot/internal/post"
	kit "postbot/internal/transport"
	"postbot/pkg/tgui"
)

const (
	// unknownReasonLimit bounds the raw text kept for unclassified errors.
	unknownReasonLimit = 50
	// detailLimit bounds the raw text kept for classified errors.
	detailLimit = 120
)

type Result struct {
	Category post.FailureCategory
	Reason   string
}

// Classify never fails: an unrecognized error lands in post.Unknown.
func Classify(err error) Result {
	if err == nil {
		return Result{Category: post.Unknown, Reason: "error: unknown"}
	}
	if pe, ok := kit.AsPlatformError(err); ok {
		return fromPlatform(pe)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Category: post.Unknown, Reason: "error: timed out"}
	case errors.Is(err, context.Canceled):
		return Result{Category: post.Unknown, Reason: "error: canceled"}
	}
	return unknown(err.Error())
}

func fromPlatform(pe *kit.PlatformError) Result {
	desc := strings.TrimSpace(pe.Description)
	switch pe.Kind {
	case kit.ErrKindForbidden:
		return Result{Category: post.PermissionDenied, Reason: "bot is not admin or was removed"}
	case kit.ErrKindNotFound:
		return Result{Category: post.NotFound, Reason: "channel not found or bot removed"}
	case kit.ErrKindMigrated:
		reason := "channel migrated to a new id; add it again"
		if pe.MigratedTo != 0 {
			reason = fmt.Sprintf("channel migrated to %d; add it again", pe.MigratedTo)
		}
		return Result{Category: post.ChatMigrated, Reason: reason}
	case kit.ErrKindBadRequest:
		return Result{Category: post.InvalidRequest, Reason: "invalid request: " + tgui.TruncRunes(desc, detailLimit)}
	case kit.ErrKindFlood:
		if pe.RetryAfter > 0 {
			return Result{Category: post.Unknown, Reason: fmt.Sprintf("error: rate limited, retry after %ds", pe.RetryAfter)}
		}
		return Result{Category: post.Unknown, Reason: "error: rate limited"}
	}
	return unknown(pe.Error())
}

func unknown(raw string) Result {
	return Result{Category: post.Unknown, Reason: "error: " + tgui.TruncRunes(strings.TrimSpace(raw), unknownReasonLimit)}
}

// Panic folds a recovered panic value into a catch-all result.
func Panic(v any) Result {
	return unknown(fmt.Sprintf("internal failure: %v", v))
}
