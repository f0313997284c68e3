package audit

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/mp3transcriber/internal/model"
)

// audit_logs の列長（文字数）。
const (
	maxEventTypeLength = 64
	maxIPAddressLength = 64
	maxUserAgentLength = 512
	maxDetailLength    = 256
)

// sanitize はクライアント由来の文字列をPostgreSQLが受け付ける形に整える。
// 不正なUTF-8はU+FFFDに置き換え、NULは取り除き、列長を超える分は切り詰める。
// Detailsは呼び出し元のmapを変更しないよう複製する。
func sanitize(a model.AccessAttempt) model.AccessAttempt {
	a.EventType = cleanString(a.EventType, maxEventTypeLength)
	a.IPAddress = cleanString(a.IPAddress, maxIPAddressLength)
	a.UserAgent = cleanString(a.UserAgent, maxUserAgentLength)
	if a.Details != nil {
		a.Details = cleanMap(a.Details)
	}
	return a
}

func cleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[cleanString(k, maxDetailLength)] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch v := v.(type) {
	case string:
		return cleanString(v, maxDetailLength)
	case map[string]any:
		return cleanMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cleanValue(e)
		}
		return out
	default:
		return v
	}
}

// cleanString はsを有効なUTF-8にし、NULを除いて最大maxRunes文字に切り詰める。
func cleanString(s string, maxRunes int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
