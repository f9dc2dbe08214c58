package post

// FailureCategory is the closed taxonomy of per-channel failures.
type FailureCategory string

const (
	PermissionDenied FailureCategory = "permission_denied"
	InvalidRequest   FailureCategory = "invalid_request"
	ChatMigrated     FailureCategory = "chat_migrated"
	NotFound         FailureCategory = "not_found"
	Unknown          FailureCategory = "unknown"
)

// Failure is one channel that did not receive the post.
// Channel is zero for a synthetic precondition failure.
type Failure struct {
	Channel  ChannelID
	Category FailureCategory
	Reason   string
}

// Label is the channel rendering used in reports ("N/A" for synthetic failures).
func (f Failure) Label() string {
	if f.Channel.IsZero() {
		return "N/A"
	}
	return f.Channel.String()
}

type Outcome struct {
	Succeeded int
	Failures  []Failure
}

func (o *Outcome) Fail(ch ChannelID, cat FailureCategory, reason string) {
	o.Failures = append(o.Failures, Failure{Channel: ch, Category: cat, Reason: reason})
}

func (o Outcome) Attempted() int { return o.Succeeded + len(o.Failures) }
