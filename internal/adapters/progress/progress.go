// Package progress implements the merge Observer port as throttled log
// lines. Purely observational; the engine behaves identically with the
// nop observer
package progress

import (
	"time"

	"benchprep/internal/platform/logger"
	"benchprep/internal/services/merge/domain"
)

// Options configures the logging observer
type Options struct {
	// Every emits one log line per N callbacks; <=0 -> 50000
	Every int
}

// Logger logs throttled progress for both passes
type Logger struct {
	every int
	log   *logger.Logger

	lookupStart time.Time
	mergeStart  time.Time
}

// NewLogger constructs a logging observer
func NewLogger(opts Options) *Logger {
	every := opts.Every
	if every <= 0 {
		every = 50000
	}
	return &Logger{every: every, log: logger.Named("progress")}
}

// LookupLine implements domain.Observer
func (p *Logger) LookupLine(lines int, bytes int64) {
	if p.lookupStart.IsZero() {
		p.lookupStart = time.Now()
	}
	if lines%p.every != 0 {
		return
	}
	elapsed := time.Since(p.lookupStart)
	p.log.Info().
		Int("lines", lines).
		Int64("bytes", bytes).
		Float64("lines_per_sec", rate(lines, elapsed)).
		Msg("lookup pass")
}

// MergeRecord implements domain.Observer
func (p *Logger) MergeRecord(done, total int) {
	if p.mergeStart.IsZero() {
		p.mergeStart = time.Now()
	}
	if done%p.every != 0 {
		return
	}
	elapsed := time.Since(p.mergeStart)
	ev := p.log.Info().
		Int("records", done).
		Float64("records_per_sec", rate(done, elapsed))
	if total > 0 {
		ev = ev.Int("total", total).Float64("percent", 100*float64(done)/float64(total))
	}
	ev.Msg("merge pass")
}

// Done implements domain.Observer
func (p *Logger) Done(s domain.Summary) {
	p.log.Info().
		Int("records", s.Records).
		Int("added_locations", s.AddedLocations).
		Int("added_findings", s.AddedFindings).
		Msg("merge pass done")
}

func rate(n int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}
