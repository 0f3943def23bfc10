package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// MaxCapturedLines bounds the number of lines one capture keeps.
const MaxCapturedLines = 1000

type lineStore struct {
	mu      sync.Mutex
	lines   []string
	dropped int
}

func (s *lineStore) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) >= MaxCapturedLines {
		s.dropped++
		return
	}
	s.lines = append(s.lines, line)
}

// Capture is a slog.Handler that forwards every record to the next handler and
// also keeps a one-line rendering of records at or above its level. Handlers
// derived with WithAttrs or WithGroup share the same lines.
type Capture struct {
	next   slog.Handler
	level  slog.Leveler
	store  *lineStore
	prefix string
	group  string
}

// NewCapture wraps next. A nil next captures without forwarding.
func NewCapture(next slog.Handler, level slog.Leveler) *Capture {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Capture{next: next, level: level, store: &lineStore{}}
}

func (c *Capture) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= c.level.Level() {
		return true
	}
	return c.next != nil && c.next.Enabled(ctx, level)
}

func (c *Capture) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= c.level.Level() {
		c.store.add(c.format(r))
	}
	if c.next != nil && c.next.Enabled(ctx, r.Level) {
		return c.next.Handle(ctx, r)
	}
	return nil
}

func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *c
	if c.next != nil {
		clone.next = c.next.WithAttrs(attrs)
	}
	var b strings.Builder
	b.WriteString(c.prefix)
	for _, a := range attrs {
		writeAttr(&b, c.group, a)
	}
	clone.prefix = b.String()
	return &clone
}

func (c *Capture) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	clone := *c
	if c.next != nil {
		clone.next = c.next.WithGroup(name)
	}
	if c.group != "" {
		clone.group = c.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// Lines returns a copy of the captured lines.
func (c *Capture) Lines() []string {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make([]string, len(c.store.lines), len(c.store.lines)+1)
	copy(out, c.store.lines)
	if c.store.dropped > 0 {
		out = append(out, fmt.Sprintf("... %d more lines dropped", c.store.dropped))
	}
	return out
}

func (c *Capture) format(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(c.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, c.group, a)
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		g := a.Key
		if group != "" && g != "" {
			g = group + "." + g
		} else if g == "" {
			g = group
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, g, ga)
		}
		return
	}
	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
