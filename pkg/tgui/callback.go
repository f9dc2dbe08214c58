package tgui

import (
	"errors"
	"strings"
)

var ErrCallbackDataInvalid = errors.New("tgui: callback_data malformed")

// Data formats inline callback data as "scope:action:payload".
// Payload is kept as-is (no escaping) and may itself contain ':'.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// ParseData splits "scope:action[:payload]". Telegram may prefix unique
// button ids with "\f"; that prefix is dropped.
func ParseData(data string) (scope, action, payload string, err error) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return "", "", "", ErrCallbackDataInvalid
	}
	scope = strings.TrimSpace(parts[0])
	action = strings.TrimSpace(parts[1])
	if scope == "" || action == "" {
		return "", "", "", ErrCallbackDataInvalid
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return scope, action, payload, nil
}
