package dialogue

import (
	"encoding/json"
	"strings"
)

// ParseRound extracts dialogue turns from one model response. It first tries
// the structured JSON contract; when that fails it falls back to scanning
// plain text for role-marker lines, which recovers usable turns from models
// that ignored the format instruction. Returns nil when nothing usable was
// found.
func ParseRound(raw string) []Turn {
	if turns := parseJSON(raw); len(turns) > 0 {
		return turns
	}
	return scanMarkedLines(raw)
}

type rawTurn struct {
	ID      int    `json:"id"`
	User    string `json:"user"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func parseJSON(raw string) []Turn {
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil
	}
	var parsed struct {
		Dialogue []rawTurn `json:"dialogue"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil
	}

	var turns []Turn
	for _, rt := range parsed.Dialogue {
		marker := rt.User
		if marker == "" {
			marker = rt.Speaker
		}
		role, ok := parseRole(marker)
		if !ok {
			continue
		}
		text := strings.TrimSpace(rt.Text)
		if text == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: role, Text: text})
	}
	return turns
}

// extractJSONObject slices from the first '{' to the last '}', tolerating
// markdown fences and surrounding prose.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// scanMarkedLines is the lossy fallback: any line starting with a known
// role marker becomes a turn; everything else is dropped.
func scanMarkedLines(raw string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		role, text, ok := splitMarkedLine(line)
		if !ok {
			continue
		}
		turns = append(turns, Turn{Speaker: role, Text: text})
	}
	return turns
}

func splitMarkedLine(line string) (Role, string, bool) {
	for _, sep := range []string{":", "："} {
		idx := strings.Index(line, sep)
		if idx <= 0 {
			continue
		}
		role, ok := parseRole(line[:idx])
		if !ok {
			continue
		}
		text := strings.TrimSpace(line[idx+len(sep):])
		if text == "" {
			return "", "", false
		}
		return role, text, true
	}
	return "", "", false
}

func parseRole(marker string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "m", "male", "男":
		return RoleMale, true
	case "f", "female", "女":
		return RoleFemale, true
	default:
		return "", false
	}
}
