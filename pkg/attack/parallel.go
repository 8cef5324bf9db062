package attack

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// ParallelOptions bounds a parallel group
type ParallelOptions struct {
	Ceiling time.Duration // Wait at most this long for a success
	Grace   time.Duration // Time losers get to exit after cancellation
	Logger  *logrus.Logger

	// OnOutcome, when set, sees every outcome collected, winner included
	OnOutcome func(Outcome)
}

// Outcome is what one technique produced
type Outcome struct {
	Kind     models.AttackKind
	Result   *models.CrackResult
	Err      error
	Duration time.Duration
}

// Success reports whether the technique produced an artifact
func (o Outcome) Success() bool {
	return o.Err == nil && o.Result != nil
}

// runTechnique runs t and turns a panic into an error
func runTechnique(ctx context.Context, t Technique) (out Outcome) {
	start := time.Now()
	out.Kind = t.Kind()
	defer func() {
		if r := recover(); r != nil {
			out.Result = nil
			out.Err = fmt.Errorf("%s panicked: %v", out.Kind, r)
		}
		out.Duration = time.Since(start)
	}()
	out.Result, out.Err = t.Run(ctx)
	return out
}

// RunParallel starts every technique at once and returns the first
// successful outcome. The remaining techniques are cancelled and given
// opts.Grace to exit. A nil outcome means the whole group failed or the
// ceiling passed; a success that arrives within opts.Grace after the ceiling
// still wins. The error is non-nil only when ctx was cancelled.
func RunParallel(ctx context.Context, techniques []Technique, opts ParallelOptions) (*Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if len(techniques) == 0 {
		return nil, nil
	}

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan Outcome, len(techniques))
	for _, t := range techniques {
		go func(t Technique) {
			outcomes <- runTechnique(groupCtx, t)
		}(t)
	}

	var ceiling <-chan time.Time
	if opts.Ceiling > 0 {
		timer := time.NewTimer(opts.Ceiling)
		defer timer.Stop()
		ceiling = timer.C
	}

	var winner *Outcome
	var err error
	pending := len(techniques)

wait:
	for pending > 0 {
		select {
		case out := <-outcomes:
			pending--
			if opts.OnOutcome != nil {
				opts.OnOutcome(out)
			}
			if out.Success() {
				winner = &out
				break wait
			}
			entry := logger.WithField("attack", out.Kind)
			if out.Err != nil {
				entry.WithError(out.Err).Warn("Parallel attack failed")
			} else {
				entry.Debug("Parallel attack finished without result")
			}
		case <-ceiling:
			logger.Warnf("Parallel group gave no result within %s", opts.Ceiling)
			break wait
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		}
	}

	cancel()
	late := join(outcomes, pending, opts, logger)
	if winner == nil && err == nil {
		// an artifact finished while its group was being torn down
		if late != nil && ctx.Err() == nil {
			logger.WithField("attack", late.Kind).Info("Parallel attack succeeded after the ceiling")
			winner = late
		} else {
			err = ctx.Err()
		}
	}
	return winner, err
}

// join waits up to grace for n outstanding workers and returns the first
// success among them
func join(outcomes <-chan Outcome, n int, opts ParallelOptions, logger *logrus.Logger) *Outcome {
	if n <= 0 {
		return nil
	}
	var late *Outcome
	timer := time.NewTimer(opts.Grace)
	defer timer.Stop()
	for ; n > 0; n-- {
		select {
		case out := <-outcomes:
			logger.WithField("attack", out.Kind).Debug("Parallel attack stopped")
			if opts.OnOutcome != nil {
				opts.OnOutcome(out)
			}
			if late == nil && out.Success() {
				late = &out
			}
		case <-timer.C:
			logger.Warnf("%d parallel attack(s) still running after %s", n, opts.Grace)
			return late
		}
	}
	return late
}
