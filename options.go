package memvfs

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultMaxDescriptors is the number of descriptors that may be open at
	// once when Options.MaxDescriptors is zero.
	DefaultMaxDescriptors = 254

	// FirstDescriptor is the lowest descriptor handed out. Lower numbers are
	// reserved for the standard streams.
	FirstDescriptor = 3
)

// Options configure a Filesystem. The zero value is ready to use.
type Options struct {
	// MaxDescriptors bounds the number of simultaneously open descriptors.
	// Zero means DefaultMaxDescriptors.
	MaxDescriptors int

	// MaxFileSize bounds the size of every file. Zero means no bound below
	// the hard limit of 1 TiB.
	MaxFileSize int64

	// Clock stamps file times. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives a debug record for every operation. Defaults to a
	// logger that discards everything.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDescriptors <= 0 {
		o.MaxDescriptors = DefaultMaxDescriptors
	}
	if o.MaxFileSize < 0 {
		o.MaxFileSize = 0
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	return o
}
