package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Int returns the integer value of key, or def when unset or unparsable.
func (s *Store) Int(key string, def int) int {
	raw, ok := s.Value(key)
	if !ok {
		return def
	}
	if parsed, okParse := parseSettingInt(raw); okParse {
		return parsed
	}
	return def
}

// DurationSeconds returns key interpreted as whole seconds, or def when unset or not positive.
func (s *Store) DurationSeconds(key string, def time.Duration) time.Duration {
	n := s.Int(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// parseSettingInt accepts numbers, numeric strings, and {"value": ...} wrappers.
func parseSettingInt(raw json.RawMessage) (int, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int
	if errUnmarshal := json.Unmarshal(raw, &n); errUnmarshal == nil {
		return n, true
	}
	var f float64
	if errUnmarshal := json.Unmarshal(raw, &f); errUnmarshal == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(s))
		if errParse == nil {
			return parsed, true
		}
	}
	var wrapper struct {
		Value json.RawMessage `json:"value"`
	}
	if errUnmarshal := json.Unmarshal(raw, &wrapper); errUnmarshal == nil && len(wrapper.Value) > 0 {
		return parseSettingInt(wrapper.Value)
	}
	return 0, false
}
