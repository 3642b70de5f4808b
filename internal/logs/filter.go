package logs

import (
	"encoding/json"
	"strings"
)

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects JSON log lines. Zero values match everything. Lines that are
// not JSON only match an empty filter.
type Filter struct {
	ItemID   int64
	WorkerID string
	MinLevel string
}

type logLine struct {
	Level    string `json:"level"`
	ItemID   int64  `json:"item_id"`
	WorkerID string `json:"worker_id"`
}

// Empty reports whether f matches every line.
func (f Filter) Empty() bool {
	return f.ItemID == 0 && f.WorkerID == "" && f.MinLevel == ""
}

// Match reports whether line passes f.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	var parsed logLine
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return false
	}
	if f.ItemID != 0 && parsed.ItemID != f.ItemID {
		return false
	}
	if f.WorkerID != "" && parsed.WorkerID != f.WorkerID {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if !ok {
			return true
		}
		if levelRank[strings.ToLower(parsed.Level)] < want {
			return false
		}
	}
	return true
}
