package engine

import (
	"encoding/json"
	"strings"
)

// detailPayload is the JSON object shape some producers write into
// [Event.Detail]. The first non-empty field wins.
type detailPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

// DetailText extracts display text from a raw event detail.
//
// Plain text is returned trimmed. A payload that looks like a JSON object is
// decoded and its message, detail, reason or error field returned, in that
// order of preference. Payloads that fail to decode yield an empty string;
// they never abort stage computation.
func DetailText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var p detailPayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return ""
	}
	for _, s := range []string{p.Message, p.Detail, p.Reason, p.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
