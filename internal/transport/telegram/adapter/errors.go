package adapter

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

// apiErrRe matches telebot's "telegram: <description> (<code>)" errors for
// replies it has no typed error for.
var apiErrRe = regexp.MustCompile(`^telegram: (.*) \((\d{3})\)$`)

// toPlatformError converts telebot errors into *kit.PlatformError so callers
// never see telebot types. Unrecognized errors pass through unchanged.
func toPlatformError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := kit.AsPlatformError(err); ok {
		return err
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.PlatformError{Kind: kit.ErrKindFlood, Code: 429, Description: flood.Error(), RetryAfter: flood.RetryAfter, Err: err}
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return &kit.PlatformError{Kind: kit.ErrKindMigrated, Code: 400, Description: group.Error(), MigratedTo: group.MigratedTo, Err: err}
	}
	var api *tele.Error
	if errors.As(err, &api) {
		desc := api.Description
		if desc == "" {
			desc = api.Message
		}
		return &kit.PlatformError{Kind: kit.ClassifyDescription(api.Code, desc), Code: api.Code, Description: desc, Err: err}
	}

	if m := apiErrRe.FindStringSubmatch(strings.TrimSpace(err.Error())); m != nil {
		code, _ := strconv.Atoi(m[2])
		return &kit.PlatformError{Kind: kit.ClassifyDescription(code, m[1]), Code: code, Description: m[1], Err: err}
	}
	return err
}
