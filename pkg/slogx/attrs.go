package slogx

import (
	"log/slog"
)

const (
	// KeyLoggerName is the attribute key naming the component that logged a record.
	KeyLoggerName = "logger"
	KeyAgentID    = "agent_id"
	KeyThreadID   = "thread_id"
	KeyRunID      = "run_id"
)

// Error returns a slog.Attr with key "error" holding the error message.
// A nil error yields an empty string so callers can log unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// LoggerName returns an attribute naming the logger.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

func AgentID(id string) slog.Attr {
	return slog.String(KeyAgentID, id)
}

func ThreadID(id string) slog.Attr {
	return slog.String(KeyThreadID, id)
}

func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}

// Run groups the identifiers that correlate a log record with an agent run.
// Empty identifiers are omitted.
func Run(agentID, threadID, runID string) slog.Attr {
	var attrs []any
	if agentID != "" {
		attrs = append(attrs, AgentID(agentID))
	}
	if threadID != "" {
		attrs = append(attrs, ThreadID(threadID))
	}
	if runID != "" {
		attrs = append(attrs, RunID(runID))
	}
	return slog.Group("run", attrs...)
}

// ParseLevel maps a textual level (debug, info, warn, error) to a slog.Level,
// defaulting to info for anything it does not recognize.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
