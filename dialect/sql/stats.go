package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of failed statements.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// Statements returns the number of queries and execs.
func (s StatsSnapshot) Statements() int64 {
	return s.TotalQueries + s.TotalExecs
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.Statements()
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// Option configures a Backend.
type Option func(*Backend)

// WithSlowThreshold sets the threshold for slow query detection.
// Statements taking longer than this duration are counted as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return func(b *Backend) {
		b.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(b *Backend) {
		b.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements to the backend logger.
// This is a convenience wrapper around WithSlowQueryHook.
func WithSlowQueryLog() Option {
	return func(b *Backend) {
		b.slowHook = func(ctx context.Context, query string, args []any, duration time.Duration) {
			b.logger.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
		}
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDebug logs every statement at debug level.
func WithDebug() Option {
	return func(b *Backend) {
		b.debug = true
	}
}

// QueryStats returns the statistics of the backend.
//
//	b := sql.New(dialect.SQLite, dsn)
//	...
//	fmt.Println(b.QueryStats().Stats())
func (b *Backend) QueryStats() *QueryStats {
	return b.stats
}

func (b *Backend) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		b.stats.TotalQueries.Add(1)
	} else {
		b.stats.TotalExecs.Add(1)
	}
	b.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		b.stats.Errors.Add(1)
	}
	if b.debug {
		kind := "exec"
		if isQuery {
			kind = "query"
		}
		b.logger.DebugContext(ctx, kind, "query", query, "args", args, "duration", duration, "error", err)
	}
	if duration > b.slowThreshold {
		b.stats.SlowQueries.Add(1)
		if b.slowHook != nil {
			b.slowHook(ctx, query, args, duration)
		}
	}
}
