package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// Progress observes a multi-query run. Implementations must not affect
// results.
type Progress interface {
	Start(desc string, total int)
	Step()
	Finish()
}

// NopProgress discards progress events.
type NopProgress struct{}

func (NopProgress) Start(string, int) {}
func (NopProgress) Step()             {}
func (NopProgress) Finish()           {}

// DefaultLogEvery is how often LogProgress reports, in queries.
const DefaultLogEvery = 10

// LogProgress reports progress through a zerolog logger every Every steps
// and once at the end.
type LogProgress struct {
	logger zerolog.Logger
	every  int

	desc  string
	total int
	done  int
	start time.Time
}

// NewLogProgress creates a LogProgress reporting every DefaultLogEvery steps.
func NewLogProgress(logger zerolog.Logger) *LogProgress {
	return &LogProgress{logger: logger, every: DefaultLogEvery}
}

// Every sets the reporting interval.
func (p *LogProgress) Every(n int) *LogProgress {
	if n > 0 {
		p.every = n
	}
	return p
}

func (p *LogProgress) Start(desc string, total int) {
	p.desc, p.total, p.done, p.start = desc, total, 0, time.Now()
	p.logger.Info().Str("desc", p.desc).Int("total", total).Msg("Starting queries")
}

func (p *LogProgress) Step() {
	p.done++
	if p.done%p.every != 0 || p.done == p.total {
		return
	}
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	p.logger.Info().
		Str("desc", p.desc).
		Int("done", p.done).
		Int("total", p.total).
		Float64("progress_pct", pct).
		Msg("Query progress")
}

func (p *LogProgress) Finish() {
	p.logger.Info().
		Str("desc", p.desc).
		Int("done", p.done).
		Int("total", p.total).
		Dur("duration", time.Since(p.start)).
		Msg("Queries complete")
}
