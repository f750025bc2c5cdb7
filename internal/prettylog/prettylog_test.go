package prettylog_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/memvfs/internal/prettylog"
)

func format(t *testing.T, input string) string {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "")

	var buffer bytes.Buffer
	writer := prettylog.NewWriter(&buffer)
	for _, line := range bytes.SplitAfter([]byte(input), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		n, err := writer.Write(line)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(line) {
			t.Fatalf("wrote %d of %d bytes", n, len(line))
		}
	}
	return buffer.String()
}

func TestPrettyLog(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		output string
	}{
		{
			name:   "open",
			input:  `{"time":"2024-01-02T03:04:05.678Z","level":"DEBUG","msg":"open","path":"a","flags":"rdwr|creat","fd":3}` + "\n",
			output: "03:04:05.678 DBG open fd=3 path=a flags=rdwr|creat\n",
		},
		{
			name:   "error first",
			input:  `{"time":"2024-01-02T03:04:05.678Z","level":"DEBUG","msg":"read","fd":4,"pos":0,"n":0,"err":"read fd 4: read out of range"}` + "\n",
			output: "03:04:05.678 DBG read err=\"read fd 4: read out of range\" fd=4 n=0 pos=0\n",
		},
		{
			name:   "info",
			input:  `{"time":"2024-01-02T03:04:05Z","level":"INFO","msg":"session started","max_descriptors":254}` + "\n",
			output: "03:04:05.000 INF session started max_descriptors=254\n",
		},
		{
			name:   "nested",
			input:  `{"time":"2024-01-02T03:04:05Z","level":"WARN","msg":"x","fds":[3,4],"empty":""}` + "\n",
			output: "03:04:05.000 WRN x empty=\"\" fds=[3,4]\n",
		},
		{
			name:   "source",
			input:  `{"time":"2024-01-02T03:04:05Z","level":"ERROR","source":{"function":"f","file":"/src/memvfs/filesystem.go","line":12},"msg":"boom"}` + "\n",
			output: "03:04:05.000 ERR memvfs/filesystem.go:12 > boom\n",
		},
		{
			name:   "not json",
			input:  "plain text\n",
			output: "plain text\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.output, format(t, tc.input)); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestPrettyLogFromSlog(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(prettylog.NewWriter(&buffer), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Time(slog.TimeKey, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
			}
			return a
		},
	}))
	logger.Debug("close", "fd", 3)
	logger.Info("unlink", "path", "some file")

	want := "03:04:05.000 DBG close fd=3\n" +
		"03:04:05.000 INF unlink path=\"some file\"\n"
	if diff := cmp.Diff(want, buffer.String()); diff != "" {
		t.Error(diff)
	}
}
