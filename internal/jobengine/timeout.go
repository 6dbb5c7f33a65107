package jobengine

import (
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// JobTimeoutPolicy resolves the pool-level deadline for a job from the
// engine's configured base timeout and per-kind multiplier table
// (spec.md §4.2's timeout mapping).
type JobTimeoutPolicy struct {
	cfg *config.EngineConfig
}

// NewJobTimeoutPolicy builds a policy reading from cfg.Jobs.
func NewJobTimeoutPolicy(cfg *config.EngineConfig) *JobTimeoutPolicy {
	return &JobTimeoutPolicy{cfg: cfg}
}

// TimeoutFor returns the millisecond deadline a job of kind should run
// under: base * multiplier, defaulting the multiplier to 1.0 when kind
// has no entry in the table.
func (p *JobTimeoutPolicy) TimeoutFor(kind model.JobKind) int64 {
	mult, ok := p.cfg.Jobs.TimeoutMultipliers[kind]
	if !ok {
		mult = 1.0
	}
	return int64(float64(p.cfg.Jobs.DefaultTimeoutMs) * mult)
}

// DurationFor is TimeoutFor as a time.Duration, for callers building a
// context deadline directly rather than going through the pool.
func (p *JobTimeoutPolicy) DurationFor(kind model.JobKind) time.Duration {
	return time.Duration(p.TimeoutFor(kind)) * time.Millisecond
}
