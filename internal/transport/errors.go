package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the coarse class of a platform API error.
type ErrorKind int

const (
	ErrKindOther ErrorKind = iota
	// ErrKindForbidden: the bot was blocked, kicked, or lacks rights (HTTP 403).
	ErrKindForbidden
	// ErrKindBadRequest: the request was rejected as malformed (HTTP 400).
	ErrKindBadRequest
	// ErrKindMigrated: the target group moved to a new chat id.
	ErrKindMigrated
	// ErrKindNotFound: the chat does not exist or is not visible to the bot.
	ErrKindNotFound
	// ErrKindFlood: rate limited by the platform (HTTP 429).
	ErrKindFlood
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindForbidden:
		return "forbidden"
	case ErrKindBadRequest:
		return "bad_request"
	case ErrKindMigrated:
		return "migrated"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindFlood:
		return "flood"
	default:
		return "other"
	}
}

// PlatformError is an adapter-neutral API error.
type PlatformError struct {
	Kind        ErrorKind
	Code        int
	Description string
	MigratedTo  int64
	RetryAfter  int
	Err         error
}

func (e *PlatformError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" && e.Err != nil {
		desc = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s (%d)", desc, e.Code)
	}
	return desc
}

func (e *PlatformError) Unwrap() error { return e.Err }

// AsPlatformError extracts a *PlatformError from err's chain.
func AsPlatformError(err error) (*PlatformError, bool) {
	var pe *PlatformError
	if errors.As(err, &pe) && pe != nil {
		return pe, true
	}
	return nil, false
}

// ClassifyDescription maps an HTTP-like code and description to an ErrorKind.
// Adapters use it to build PlatformError values from raw API replies.
func ClassifyDescription(code int, desc string) ErrorKind {
	low := strings.ToLower(desc)
	switch {
	case strings.Contains(low, "chat not found"),
		strings.Contains(low, "channel not found"),
		strings.Contains(low, "user not found"):
		return ErrKindNotFound
	case strings.Contains(low, "upgraded to a supergroup"),
		strings.Contains(low, "migrate_to_chat_id"),
		strings.Contains(low, "group migrated"):
		return ErrKindMigrated
	}
	switch code {
	case 403:
		return ErrKindForbidden
	case 400:
		return ErrKindBadRequest
	case 404:
		return ErrKindNotFound
	case 429:
		return ErrKindFlood
	}
	switch {
	case strings.HasPrefix(low, "forbidden"):
		return ErrKindForbidden
	case strings.HasPrefix(low, "bad request"):
		return ErrKindBadRequest
	}
	return ErrKindOther
}
