package bridge

import "github.com/rs/zerolog"

const (
	DefaultMaxSpawnAttempts = 5
	DefaultBackoffBase      = 1
	DefaultBackoffMax       = 64
	defaultMirrorCapacity   = 256
)

// Options tunes a Bridge. Zero fields take their defaults.
type Options struct {
	// MaxSpawnAttempts bounds transient spawn failures per entity before the
	// entity is left Tracked with a warning.
	MaxSpawnAttempts uint64
	// BackoffBase is the delay in ticks after the first failed spawn. Each
	// further failure doubles it, up to BackoffMax.
	BackoffBase uint64
	BackoffMax  uint64
	// MirrorCapacity presizes the mirror tables.
	MirrorCapacity int
	// VerifyMirror checks the mirror after every tick and halts on disagreement.
	VerifyMirror bool
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxSpawnAttempts == 0 {
		o.MaxSpawnAttempts = DefaultMaxSpawnAttempts
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.MirrorCapacity <= 0 {
		o.MirrorCapacity = defaultMirrorCapacity
	}
	return o
}

// backoff returns the delay in ticks after the given number of failed attempts.
func (o *Options) backoff(attempts uint64) uint64 {
	if attempts == 0 {
		return 0
	}
	shift := attempts - 1
	if shift >= 63 || o.BackoffBase > o.BackoffMax>>shift {
		return o.BackoffMax
	}
	return o.BackoffBase << shift
}
