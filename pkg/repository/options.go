package repository

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/spectradata/datasets/pkg/transfer"
)

// DefaultAttempts is the total attempt budget of network operations.
const DefaultAttempts = 3

type options struct {
	logger   *log.Logger
	progress io.Writer
	attempts int
	interval time.Duration
	manifest bool
}

type Option func(*options) *options

// WithLogger sets where pull progress and degradation warnings are logged.
func WithLogger(l *log.Logger) Option {
	return func(o *options) *options {
		o.logger = l
		return o
	}
}

// WithProgressOutput sets where download byte-progress is rendered.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) *options {
		o.progress = w
		return o
	}
}

// WithAttempts sets the total attempt budget of each network operation.
func WithAttempts(n int) Option {
	return func(o *options) *options {
		if 0 < n {
			o.attempts = n
		}
		return o
	}
}

// WithBackoffInterval sets the wait between attempts.
func WithBackoffInterval(d time.Duration) Option {
	return func(o *options) *options {
		o.interval = d
		return o
	}
}

// WithManifest controls whether Pull prefers a urls-manifest file found in
// the record's file listing over the record's own download links.
// Default: true.
func WithManifest(use bool) Option {
	return func(o *options) *options {
		o.manifest = use
		return o
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   log.Default(),
		progress: os.Stderr,
		attempts: DefaultAttempts,
		interval: 1 * time.Second,
		manifest: true,
	}
	for _, opt := range opts {
		o = opt(o)
	}
	return o
}

func (o *options) apply(opts []Option) *options {
	merged := *o
	dest := &merged
	for _, opt := range opts {
		dest = opt(dest)
	}
	return dest
}

func (o *options) transferOptions() []transfer.Option {
	return []transfer.Option{
		transfer.WithAttempts(o.attempts),
		transfer.WithBackoffInterval(o.interval),
		transfer.WithLogger(o.logger),
		transfer.WithProgressOutput(o.progress),
	}
}
