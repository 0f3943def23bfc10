package postgres

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// ErrLeaseLost is returned by an outcome update when the row is no longer
// held by the calling worker, typically because its lease expired and
// another worker reclaimed the job.
var ErrLeaseLost = errors.New("lease lost")

type repoOptions struct {
	now        func() time.Time
	skipLocked *bool
	log        *slog.Logger
}

type Option func(*repoOptions)

// WithClock replaces the wall clock used for eligibility and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *repoOptions) { o.now = now }
}

// WithSkipLocked toggles the FOR UPDATE SKIP LOCKED claim. It defaults to on
// for postgres and off for every other dialect.
func WithSkipLocked(enabled bool) Option {
	return func(o *repoOptions) { o.skipLocked = &enabled }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *repoOptions) { o.log = log }
}

// Now is the default clock. Times are UTC with microsecond precision, which
// is what postgres stores and what keeps SQLite's text comparison ordered.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func buildOptions(db *gorm.DB, opts []Option) repoOptions {
	o := repoOptions{now: Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.skipLocked == nil {
		on := db.Dialector.Name() == "postgres"
		o.skipLocked = &on
	}
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
