package pipeline

import (
	"context"
	"fmt"
	"time"

	"db_sheets_sync/internal/config"

	"github.com/rs/zerolog/log"
)

// Runner synchronizes a single target.
type Runner interface {
	Run(ctx context.Context, target config.Target) Outcome
}

// Summary aggregates the outcomes of one pass over all targets.
type Summary struct {
	Status    Status        `json:"status"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"-"`
	Outcomes  []Outcome     `json:"targets"`
}

// Coordinator runs every configured target in order, one at a time, pausing
// between targets. Two coordinators writing to the same sheet are not
// serialized against each other.
type Coordinator struct {
	runner  Runner
	targets []config.Target
	delay   time.Duration
	sleep   func(context.Context, time.Duration) error
}

func NewCoordinator(runner Runner, cfg config.Config) *Coordinator {
	return &Coordinator{
		runner:  runner,
		targets: append([]config.Target(nil), cfg.Targets...),
		delay:   cfg.Sync.TargetDelay,
		sleep:   sleepContext,
	}
}

func (c *Coordinator) Targets() []config.Target {
	return append([]config.Target(nil), c.targets...)
}

// RunAll attempts every target. A failed target is recorded and the next one
// is still attempted, so the summary always holds one outcome per target.
func (c *Coordinator) RunAll(ctx context.Context) Summary {
	start := time.Now()
	summary := Summary{Outcomes: make([]Outcome, 0, len(c.targets))}

	for i, target := range c.targets {
		outcome := c.runner.Run(ctx, target)
		summary.Outcomes = append(summary.Outcomes, outcome)

		if outcome.Status == StatusSuccess {
			summary.Succeeded++
			summary.Rows += outcome.Rows
		} else {
			summary.Failed++
		}

		if i < len(c.targets)-1 && c.delay > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				log.Warn().Err(err).Msg("Pacing delay interrupted")
			}
		}
	}

	summary.Duration = time.Since(start)
	summary.Status = aggregate(summary.Succeeded, summary.Failed)

	log.Info().
		Str("status", string(summary.Status)).
		Int("targets", len(c.targets)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Sync pass complete")

	return summary
}

// RunOne synchronizes the target with the given name.
func (c *Coordinator) RunOne(ctx context.Context, name string) (Outcome, error) {
	for _, target := range c.targets {
		if target.Name == name {
			return c.runner.Run(ctx, target), nil
		}
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrTargetNotFound, name)
}

func aggregate(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailure
	default:
		return StatusPartialFailure
	}
}
