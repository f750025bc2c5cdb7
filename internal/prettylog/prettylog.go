// MIT License
//
// # Copyright (c) 2017 Olivier Poitrey
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Based on https://github.com/rs/zerolog/blob/master/console.go.

// Package prettylog renders JSON slog records as single console lines.
package prettylog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorCyan    = 36

	colorBold     = 1
	colorDarkGray = 90
)

// Keys printed in a fixed position ahead of the other fields. Filesystem
// operations log the descriptor and path they act on.
const (
	errorKey = "err"
	fdKey    = "fd"
	pathKey  = "path"
)

// A Writer reformats each JSON record written to it and writes the result to
// an underlying writer. Input that is not JSON is passed through unchanged.
type Writer struct {
	out       io.Writer
	formatter formatter
}

// NewWriter returns a Writer writing to out. Colors are used when stdout is a
// terminal, unless NO_COLOR is set; FORCE_COLOR turns them on regardless.
func NewWriter(out io.Writer) *Writer {
	noColor := os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" ||
		(!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()))
	noColor = noColor && os.Getenv("FORCE_COLOR") == ""
	return &Writer{
		out:       out,
		formatter: formatter{noColor: noColor},
	}
}

var writePool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// Write formats the record in p. It always consumes all of p.
func (w *Writer) Write(p []byte) (int, error) {
	var evt map[string]any
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		if _, werr := w.out.Write(p); werr != nil {
			return 0, werr
		}
		return len(p), nil
	}

	buf := writePool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		writePool.Put(buf)
	}()

	for _, key := range []string{slog.TimeKey, slog.LevelKey, slog.SourceKey, slog.MessageKey} {
		w.writePart(buf, evt, key)
	}
	w.writeFields(buf, evt)
	buf.WriteByte('\n')

	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func jsonMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// needsQuote reports whether s must be quoted to read unambiguously.
func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	for i := range s {
		if s[i] < 0x20 || s[i] > 0x7e || s[i] == ' ' || s[i] == '\\' || s[i] == '"' {
			return true
		}
	}
	return false
}

// fieldOrder returns the keys of evt that are not fixed parts: err, fd and
// path first, the rest sorted.
func fieldOrder(evt map[string]any) []string {
	var lead, rest []string
	for _, key := range []string{errorKey, fdKey, pathKey} {
		if _, ok := evt[key]; ok {
			lead = append(lead, key)
		}
	}
	for key := range evt {
		switch key {
		case slog.LevelKey, slog.TimeKey, slog.MessageKey, slog.SourceKey, errorKey, fdKey, pathKey:
			continue
		}
		rest = append(rest, key)
	}
	slices.Sort(rest)
	return append(lead, rest...)
}

func (w *Writer) writeFields(buf *bytes.Buffer, evt map[string]any) {
	for _, field := range fieldOrder(evt) {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(w.formatter.fieldName(field))

		switch value := evt[field].(type) {
		case string:
			if needsQuote(value) {
				value = strconv.Quote(value)
			}
			buf.WriteString(w.formatter.fieldValue(field, value))
		case json.Number:
			buf.WriteString(w.formatter.fieldValue(field, value.String()))
		default:
			b, err := jsonMarshal(value)
			if err != nil {
				fmt.Fprintf(buf, w.formatter.colorize("[error: %v]", colorRed), err)
			} else {
				buf.WriteString(w.formatter.fieldValue(field, string(b)))
			}
		}
	}
}

func (w *Writer) writePart(buf *bytes.Buffer, evt map[string]any, key string) {
	var s string
	switch key {
	case slog.LevelKey:
		s = w.formatter.level(evt[key])
	case slog.TimeKey:
		s = w.formatter.timestamp(evt[key])
	case slog.MessageKey:
		s = w.formatter.message(evt[slog.LevelKey], evt[key])
	case slog.SourceKey:
		s = w.formatter.caller(evt[key])
	}

	if len(s) > 0 {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s)
	}
}

type formatter struct {
	noColor bool
}

// colorize wraps s in the ANSI codes c unless colors are off.
func (f *formatter) colorize(s string, c ...int) string {
	if f.noColor {
		return s
	}
	for _, c := range c {
		s = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
	}
	return s
}

const timeFormat = "15:04:05.000"

func (f *formatter) timestamp(i any) string {
	s, ok := i.(string)
	if !ok {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		s = ts.UTC().Format(timeFormat)
	}
	return f.colorize(s, colorDarkGray)
}

var levelColors = map[slog.Level]int{
	slog.LevelDebug: colorMagenta,
	slog.LevelInfo:  colorGreen,
	slog.LevelWarn:  colorYellow,
	slog.LevelError: colorRed,
}

var formattedLevels = map[slog.Level]string{
	slog.LevelDebug: "DBG",
	slog.LevelInfo:  "INF",
	slog.LevelWarn:  "WRN",
	slog.LevelError: "ERR",
}

func (f *formatter) level(i any) string {
	s, ok := i.(string)
	if !ok {
		return "???"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err == nil {
		if fl, ok := formattedLevels[level]; ok {
			return f.colorize(fl, levelColors[level])
		}
	}
	s = strings.ToUpper(s)
	return s[:min(3, len(s))]
}

func (f *formatter) caller(i any) string {
	m, ok := i.(map[string]any)
	if !ok {
		return ""
	}
	file, _ := m["file"].(string)
	line, _ := m["line"].(json.Number)
	if file == "" {
		return ""
	}
	c := fmt.Sprintf("%s/%s:%s", path.Base(path.Dir(file)), path.Base(file), line)
	return f.colorize(c, colorDarkGray) + f.colorize(" >", colorCyan)
}

func (f *formatter) message(level any, i any) string {
	s, _ := i.(string)
	if s == "" {
		return ""
	}
	if level == "DEBUG" {
		return s
	}
	return f.colorize(s, colorBold)
}

func (f *formatter) fieldName(name string) string {
	return f.colorize(name+"=", colorCyan)
}

func (f *formatter) fieldValue(field string, s string) string {
	if field == errorKey {
		return f.colorize(s, colorBold, colorRed)
	}
	return s
}
