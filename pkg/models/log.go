package models

import "time"

// LogType classifies an entry in the activity log.
type LogType string

const (
	LogAction   LogType = "action"
	LogResponse LogType = "response"
	LogError    LogType = "error"
	LogState    LogType = "state"
	LogAgent    LogType = "agent"
	LogBrowser  LogType = "browser"
)

// LogEntry is one record in the bounded activity log consumed by the
// dashboard. Data is opaque to the log itself.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"sessionId,omitempty"`
	Type       LogType   `json:"type"`
	Action     string    `json:"action,omitempty"`
	Data       any       `json:"data,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
}
