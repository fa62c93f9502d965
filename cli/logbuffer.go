// Package cli provides the interactive command surface described in spec
// §6: a thin command dispatcher over algorithm reads and orchestrator
// sends, in the style of the reference mesh implementation's room CLI
// dispatch (parts[0] switch, one method per command).
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ring is the shared, mutable ring buffer state behind every LogBuffer
// derived from the same root via WithAttrs/WithGroup. Handlers created
// that way differ only in which attrs/group they prefix a line with —
// they must all append into the same position counters, or concurrent
// components logging through different derived handlers would corrupt
// each other's slots.
type ring struct {
	mu    sync.Mutex
	lines []string
	cap   int
	next  int
	size  int
}

func (r *ring) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

func (r *ring) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.size)
	start := r.next - r.size
	if r.size < r.cap {
		start = 0
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.lines[(start+i+r.cap)%r.cap])
	}
	return out
}

// LogBuffer is a bounded, fixed-capacity ring of recently emitted log
// lines, exposed to the operator via the "logs" CLI command. It implements
// slog.Handler so it can sit alongside (or in place of) the usual text
// handler without the routing core knowing it is being observed.
type LogBuffer struct {
	r        *ring
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

// NewLogBuffer creates a LogBuffer holding at most capacity lines. Once
// full, each new line evicts the oldest.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &LogBuffer{r: &ring{lines: make([]string, capacity), cap: capacity}}
}

// Enabled reports whether the given level should be recorded.
func (b *LogBuffer) Enabled(_ context.Context, level slog.Level) bool {
	return level >= b.minLevel
}

// Handle records one log record as a formatted line.
func (b *LogBuffer) Handle(_ context.Context, r slog.Record) error {
	b.r.push(formatRecord(r, b.group, b.attrs))
	return nil
}

// WithAttrs returns a handler that prefixes every future line with attrs,
// sharing this LogBuffer's underlying ring.
func (b *LogBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogBuffer{
		r:        b.r,
		minLevel: b.minLevel,
		group:    b.group,
		attrs:    append(append([]slog.Attr{}, b.attrs...), attrs...),
	}
}

// WithGroup returns a handler that namespaces future attrs under name,
// sharing this LogBuffer's underlying ring.
func (b *LogBuffer) WithGroup(name string) slog.Handler {
	g := name
	if b.group != "" {
		g = b.group + "." + name
	}
	return &LogBuffer{r: b.r, minLevel: b.minLevel, group: g, attrs: b.attrs}
}

// Lines returns the buffered lines in oldest-to-newest order.
func (b *LogBuffer) Lines() []string {
	return b.r.snapshot()
}

func formatRecord(r slog.Record, group string, attrs []slog.Attr) string {
	var sb []byte
	sb = r.Time.UTC().AppendFormat(sb, "15:04:05.000")
	sb = append(sb, ' ')
	sb = append(sb, r.Level.String()...)
	sb = append(sb, ' ')
	sb = append(sb, r.Message...)
	for _, a := range attrs {
		sb = appendAttr(sb, group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		sb = appendAttr(sb, group, a)
		return true
	})
	return string(sb)
}

func appendAttr(sb []byte, group string, a slog.Attr) []byte {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	sb = append(sb, ' ')
	sb = append(sb, key...)
	sb = append(sb, '=')
	sb = append(sb, fmt.Sprint(a.Value.Any())...)
	return sb
}

var _ slog.Handler = (*LogBuffer)(nil)
