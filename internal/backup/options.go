package backup

import (
	"compress/gzip"
	"log/slog"
	"time"
)

// DefaultChunkTarget is the uncompressed size at which a chunk is closed.
const DefaultChunkTarget = 1 << 20

// Option configures a handle.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	logSuffix    string
	indexSuffix  string
	level        int
	now          func() time.Time
	onMalformed  Policy
	onIndexError Policy
	chunkTarget  int64
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		logSuffix:   DefaultLogSuffix,
		indexSuffix: DefaultIndexSuffix,
		level:       gzip.DefaultCompression,
		now:         time.Now,
		chunkTarget: DefaultChunkTarget,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSuffixes overrides the log and index file suffixes. Empty values keep
// the defaults.
func WithSuffixes(log, index string) Option {
	return func(o *options) {
		if log != "" {
			o.logSuffix = log
		}
		if index != "" {
			o.indexSuffix = index
		}
	}
}

// WithCompressionLevel sets the gzip level for new chunks.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// WithClock sets the wall clock used for session markers.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMalformedPolicy sets how replay treats malformed records.
func WithMalformedPolicy(p Policy) Option {
	return func(o *options) { o.onMalformed = p }
}

// WithIndexErrorPolicy sets how replay and Apply treat failed index writes.
func WithIndexErrorPolicy(p Policy) Option {
	return func(o *options) { o.onIndexError = p }
}

// WithChunkTarget sets the uncompressed chunk size at which appends and
// compaction start a new chunk. Zero or less disables the limit.
func WithChunkTarget(n int64) Option {
	return func(o *options) { o.chunkTarget = n }
}
