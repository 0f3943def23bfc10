// Package worker drains the notification and webhook queues. A Driver run
// takes the batch lock, processes up to a limit of jobs one at a time,
// cleans up old rows and reports what happened in a Summary.
package worker

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/joshu-sajeev/notifyqueue/internal/retry"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeRetried Outcome = "retried"
	OutcomeFailed  Outcome = "failed"
	// OutcomeLeaseLost means the job was handled but another worker took it
	// over before the result could be written.
	OutcomeLeaseLost Outcome = "lease_lost"
)

// Result describes one ProcessNext call. Claimed is false when the queue had
// nothing eligible.
type Result struct {
	Claimed bool
	JobID   uint64
	Outcome Outcome
	Cause   string
}

type BatchStats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

func (s *BatchStats) add(r Result) {
	if !r.Claimed {
		return
	}
	s.Processed++
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeRetried:
		s.Retried++
	case OutcomeFailed:
		s.Failed++
	}
}

// ProcessorConfig is shared by both queue processors.
type ProcessorConfig struct {
	Lease  time.Duration
	Policy retry.Policy
	Now    func() time.Time
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.Policy == nil {
		c.Policy = retry.Exponential{}
	}
	if c.Now == nil {
		c.Now = postgres.Now
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	return c
}

// permanent marks err as not worth retrying.
func permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var perr *backoff.PermanentError
	return errors.As(err, &perr)
}

// leaseLost reports whether an outcome update found the row owned by someone
// else. That is not an infrastructure failure.
func leaseLost(err error) bool {
	return errors.Is(err, postgres.ErrLeaseLost)
}

// truncate makes s storable in a text column: invalid UTF-8 and NUL bytes are
// dropped and the result is cut to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
