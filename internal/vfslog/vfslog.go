// Package vfslog builds the loggers used by memvfs and its command, and
// parses the records they write.
package vfslog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/zap"

	zapslog "github.com/tommoulard/zap-slog"

	"github.com/kmrgirish/memvfs/internal/prettylog"
)

// Formats accepted by NewHandler.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPretty = "pretty"
)

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("bad log level %q: %w", s, err)
	}
	return level, nil
}

// NewHandler returns a handler writing records at or above level to w.
func NewHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return slog.NewJSONHandler(w, opts), nil
	case FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatPretty:
		return slog.NewJSONHandler(prettylog.NewWriter(w), opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NewLogger is NewHandler wrapped in a logger.
func NewLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	handler, err := NewHandler(w, level, format)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewZap returns a zap logger whose entries end up in logger.
func NewZap(logger *slog.Logger) (*zap.Logger, error) {
	return zap.NewProduction(zapslog.WrapCore(logger))
}

// A Log is one decoded JSON record.
type Log struct {
	Index int `json:"-"`

	Time  time.Time  `json:"time"`
	Level slog.Level `json:"level"`
	Msg   string     `json:"msg"`

	// Attributes logged by filesystem operations.
	Path  string `json:"path"`
	FD    *int   `json:"fd"`
	N     int    `json:"n"`
	Err   string `json:"err"`
	Inode uint64 `json:"inode"`

	// Fields holds every attribute, including the ones above.
	Fields map[string]any `json:"-"`
}

// ParseLog decodes the JSON records in logs, one per line. Lines that are not
// JSON objects are skipped.
func ParseLog(logs []byte) []*Log {
	var out []*Log

	for _, line := range bytes.Split(logs, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var log Log
		if err := json.Unmarshal(line, &log); err != nil {
			continue
		}
		if err := json.Unmarshal(line, &log.Fields); err != nil {
			continue
		}
		for _, key := range []string{slog.TimeKey, slog.LevelKey, slog.MessageKey} {
			delete(log.Fields, key)
		}
		log.Index = len(out)
		out = append(out, &log)
	}

	return out
}
