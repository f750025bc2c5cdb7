package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kmrgirish/memvfs"
	"github.com/kmrgirish/memvfs/internal/config"
	"github.com/kmrgirish/memvfs/internal/shell"
	"github.com/kmrgirish/memvfs/internal/vfslog"
)

const doc = `Memvfs runs an in-memory filesystem and executes commands against it.

Usage: memvfs [flags]

With --script, or when standard input is not a terminal, commands are read
line by line and the command exits non-zero if any line had an unexpected
result. Otherwise an interactive prompt is started. Type 'help' at the prompt
for the list of commands.

A config file (JSON, comments allowed) is read from --config, or from
$XDG_CONFIG_HOME/memvfs/config.json if it exists:

    {
      "max_descriptors": 254,
      "max_file_size": 0,
      "log_level": "info",
      "log_format": "pretty",
      "history_file": ""
    }

Flags override the config file.

Flags:
`

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

type session struct {
	cfg    config.Config
	log    *slog.Logger
	zap    *zap.Logger
	fsys   *memvfs.Filesystem
	shell  *shell.Shell
	stdout io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, env map[string]string) int {
	flags := flag.NewFlagSet("memvfs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, doc)
		flags.PrintDefaults()
	}

	configPath := flags.StringP("config", "c", "", "config file")
	maxDescriptors := flags.Int("max-descriptors", memvfs.DefaultMaxDescriptors, "number of descriptors that may be open at once")
	maxFileSize := flags.Int64("max-file-size", 0, "maximum file size in bytes, 0 for unlimited")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn or error")
	logFormat := flags.String("log-format", vfslog.FormatPretty, "log format: pretty, json or text")
	script := flags.StringP("script", "s", "", "run commands from a file, - for stdin")
	history := flags.String("history", "", "history file for the interactive prompt")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "memvfs: unexpected arguments: %s\n", strings.Join(flags.Args(), " "))
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath, env)
	if err != nil {
		fmt.Fprintf(stderr, "memvfs: %v\n", err)
		return 1
	}
	if flags.Changed("max-descriptors") {
		cfg.MaxDescriptors = *maxDescriptors
	}
	if flags.Changed("max-file-size") {
		cfg.MaxFileSize = *maxFileSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if flags.Changed("history") {
		cfg.HistoryFile = *history
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "memvfs: %v\n", err)
		return 2
	}

	s, err := newSession(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "memvfs: %v\n", err)
		return 1
	}
	defer s.zap.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *script != "" && *script != "-":
		f, err := os.Open(*script)
		if err != nil {
			fmt.Fprintf(stderr, "memvfs: %v\n", err)
			return 1
		}
		defer f.Close()
		err = s.runScript(ctx, f)
	case *script == "-" || !isTerminal(stdin):
		err = s.runScript(ctx, stdin)
	default:
		err = s.repl(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "memvfs: %v\n", err)
		return 1
	}
	return 0
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func newSession(cfg config.Config, stdout, stderr io.Writer) (*session, error) {
	logger, err := vfslog.NewLogger(stderr, cfg.Level(), cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	z, err := vfslog.NewZap(logger)
	if err != nil {
		return nil, err
	}

	fsys := memvfs.New(cfg.Options(logger))
	z.Debug("session started",
		zap.Int("max_descriptors", cfg.MaxDescriptors),
		zap.Int64("max_file_size", cfg.MaxFileSize),
		zap.String("config", cfg.Source),
	)

	return &session{
		cfg:    cfg,
		log:    logger,
		zap:    z,
		fsys:   fsys,
		shell:  shell.New(fsys, stdout),
		stdout: stdout,
	}, nil
}

func (s *session) runScript(ctx context.Context, r io.Reader) error {
	err := s.shell.Script(ctx, r)
	s.zap.Debug("script finished",
		zap.Ints("open_descriptors", s.fsys.OpenDescriptors()),
		zap.Int("live_inodes", s.fsys.LiveInodes()),
		zap.NamedError("check", s.fsys.Check()),
		zap.Error(err),
	)
	return err
}

func (s *session) repl(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(shell.Complete)

	s.loadHistory(line)
	defer s.saveHistory(line)

	fmt.Fprintf(s.stdout, "memvfs (max_descriptors=%d). Type 'help' for commands.\n", s.cfg.MaxDescriptors)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		input, err := line.Prompt("memvfs> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if _, err := s.shell.Line(ctx, input); errors.Is(err, shell.ErrExit) {
			return nil
		}
	}
}

type historyReader interface {
	ReadHistory(r io.Reader) (int, error)
}

func (s *session) loadHistory(line historyReader) {
	if s.cfg.HistoryFile == "" {
		return
	}
	f, err := os.Open(s.cfg.HistoryFile)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.log.Warn("loading history", "path", s.cfg.HistoryFile, "err", err)
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		s.log.Warn("loading history", "path", s.cfg.HistoryFile, "err", err)
	}
}

// saveHistory replaces the history file atomically.
func (s *session) saveHistory(line *liner.State) {
	if s.cfg.HistoryFile == "" {
		return
	}
	var buf bytes.Buffer
	if _, err := line.WriteHistory(&buf); err != nil {
		s.zap.Warn("saving history", zap.Error(err))
		return
	}
	if err := atomic.WriteFile(s.cfg.HistoryFile, &buf); err != nil {
		s.zap.Warn("saving history", zap.String("path", s.cfg.HistoryFile), zap.Error(err))
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, environ()))
}
