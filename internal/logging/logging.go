// Package logging wires up the core's zerolog logger and keeps an
// in-memory tail of recent log lines for the dashboard log viewer.
// Grounded on the teacher's cmd/pulse-agent main.go: a leveled
// zerolog.Logger writing timestamped lines to stdout, with level
// parsed from config the same way (zerolog.ParseLevel, defaulting to
// info on error).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/ring"
)

// Entry is one tail-buffered log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// TailBuffer is an io.Writer that keeps the last N log lines in
// memory for the dashboard's live log stream, backed by the same
// bounded ring the flow aggregator and the probe result history use
// for their own memory caps.
type TailBuffer struct {
	buf *ring.Buffer[Entry]
}

// NewTailBuffer creates a tail buffer holding up to capacity entries.
func NewTailBuffer(capacity int) *TailBuffer {
	return &TailBuffer{buf: ring.New[Entry](capacity)}
}

// Write implements io.Writer by parsing each zerolog JSON line into an
// Entry. A line without a level or message field is still kept, with
// level "info" and the whole line as its message; Write never returns
// an error, since logging must never fail the caller.
func (t *TailBuffer) Write(p []byte) (int, error) {
	entry := parseLine(p)
	t.buf.Push(entry)
	return len(p), nil
}

// Recent returns up to limit most-recent entries, newest last.
func (t *TailBuffer) Recent(limit int) []Entry {
	all := t.buf.Snapshot()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

func parseLine(p []byte) Entry {
	line := strings.TrimRight(string(p), "\n")
	level := "info"
	if idx := strings.Index(line, `"level":"`); idx >= 0 {
		rest := line[idx+len(`"level":"`):]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			level = rest[:end]
		}
	}
	msg := line
	if idx := strings.Index(line, `"message":"`); idx >= 0 {
		rest := line[idx+len(`"message":"`):]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			msg = rest[:end]
		}
	}
	return Entry{Time: currentTime(), Level: level, Message: msg}
}

// currentTime is a seam so tests can avoid depending on wall-clock
// ordering; production always uses time.Now.
var currentTime = time.Now

// New builds the core's root logger: JSON lines to stdout (and,
// through the tail buffer, into memory for the dashboard), at the
// given level. levelName is parsed with zerolog.ParseLevel and falls
// back to info on a parse error, matching the teacher's
// parseLogLevel.
func New(levelName string, tail *TailBuffer) zerolog.Logger {
	level := zerolog.InfoLevel
	if levelName != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(levelName)); err == nil {
			level = l
		}
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if tail != nil {
		out = io.MultiWriter(os.Stdout, tail)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
