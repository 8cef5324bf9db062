package attack

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// TechniqueFactory builds the technique of kind for target
type TechniqueFactory func(kind models.AttackKind, target models.Target) (Technique, error)

// Observer is told about the progress of a run. Calls come from the
// goroutine running AttackAll.
type Observer interface {
	RunStarted(runID string, targets []models.Target)
	TargetStarted(runID string, plan models.AttackPlan)
	AttackFinished(runID string, target models.Target, out Outcome)
	TargetFinished(runID string, target models.Target, result *models.CrackResult)
	RunFinished(summary Summary)
}

// Summary describes a finished run
type Summary struct {
	RunID    string               `json:"run_id"`
	Targets  int                  `json:"targets"`
	Attacked int                  `json:"attacked"`
	Results  []models.CrackResult `json:"results"`
	Stopped  bool                 `json:"stopped"`
}

// Driver attacks targets one at a time
type Driver struct {
	cfg       config.Config
	factory   TechniqueFactory
	store     *results.Store
	tracker   *process.Tracker
	control   *Control
	cracker   Cracker
	logger    *logrus.Logger
	observers []Observer
}

// NewDriver creates a driver. A nil store keeps results in memory only; a
// nil tracker uses process.DefaultTracker.
func NewDriver(cfg config.Config, factory TechniqueFactory, store *results.Store, tracker *process.Tracker, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	if tracker == nil {
		tracker = process.DefaultTracker
	}
	return &Driver{
		cfg:     cfg,
		factory: factory,
		store:   store,
		tracker: tracker,
		control: NewControl(),
		logger:  logger,
	}
}

// Control returns the handle used to skip techniques or stop the run
func (d *Driver) Control() *Control {
	return d.control
}

// SetCracker makes the driver try to recover the key of every captured
// handshake or PMKID before saving it
func (d *Driver) SetCracker(c Cracker) {
	d.cracker = c
}

// AddObserver registers o for progress notifications
func (d *Driver) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// AttackAll attacks every target in order. It returns early with the
// context error when ctx is cancelled or the run is stopped; every external
// process still running is then interrupted.
func (d *Driver) AttackAll(ctx context.Context, targets []models.Target) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), Targets: len(targets)}
	logger := d.logger.WithField("run", summary.RunID)

	ctx, release := d.control.RunContext(ctx)
	defer release()

	for _, o := range d.observers {
		o.RunStarted(summary.RunID, targets)
	}

	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}
		logger.WithField("bssid", target.BSSID).
			Infof("Attacking target %d/%d: %s", i+1, len(targets), target.DisplayName())

		result, err := d.attackTarget(ctx, summary.RunID, target)
		summary.Attacked++
		if result != nil {
			summary.Results = append(summary.Results, *result)
		}
		if err != nil {
			break
		}
	}

	err := ctx.Err()
	if err != nil {
		summary.Stopped = true
		if n := d.tracker.CleanupAll(d.cfg.InterruptGrace); n > 0 {
			logger.Infof("Stopped %d running process(es)", n)
		}
	}
	logger.WithFields(logrus.Fields{
		"attacked": summary.Attacked,
		"results":  len(summary.Results),
	}).Info("Attack run finished")

	for _, o := range d.observers {
		o.RunFinished(summary)
	}
	return summary, err
}

// AttackTarget runs the plan for a single target outside of a full run
func (d *Driver) AttackTarget(ctx context.Context, target models.Target) (*models.CrackResult, error) {
	ctx, release := d.control.RunContext(ctx)
	defer release()
	return d.attackTarget(ctx, uuid.NewString(), target)
}

// attackTarget returns an error only when ctx was cancelled
func (d *Driver) attackTarget(ctx context.Context, runID string, target models.Target) (*models.CrackResult, error) {
	targetCtx, release := d.control.TargetContext(ctx)
	defer release()

	logger := d.logger.WithFields(logrus.Fields{"run": runID, "bssid": target.BSSID})
	plan := BuildPlan(target, PolicyFromConfig(d.cfg))
	a := Analyze(target)
	logger.WithFields(logrus.Fields{
		"signal":       a.Signal,
		"wps":          a.WPS,
		"wps_locked":   a.WPSLocked,
		"pixie_likely": a.PixieLikely,
		"pmkid":        a.PMKID,
		"wpa3":         a.WPA3,
		"clients":      a.Clients,
		"plan":         plan.Kinds(),
	}).Info("Target analysis")

	for _, o := range d.observers {
		o.TargetStarted(runID, plan)
	}

	var groups [][]models.AttackKind
	if d.cfg.ParallelAttacks {
		groups = Groups(plan)
	} else {
		for _, kind := range plan.Kinds() {
			groups = append(groups, []models.AttackKind{kind})
		}
	}
	if len(groups) == 0 {
		logger.Info("No applicable attacks")
	}

	var result *models.CrackResult
	var err error
	for _, group := range groups {
		result, err = d.runGroup(targetCtx, runID, plan.Target, group)
		if result != nil || err != nil {
			break
		}
	}

	if err != nil {
		result = nil
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			logger.Info("Target skipped")
			err = nil
		}
	}
	if result != nil {
		d.crack(targetCtx, logger, result)
		d.save(logger, *result)
	}
	for _, o := range d.observers {
		o.TargetFinished(runID, target, result)
	}
	return result, err
}

// runGroup runs the techniques of one group, in parallel when there are
// several. It returns an error only when ctx was cancelled.
func (d *Driver) runGroup(ctx context.Context, runID string, target models.Target, kinds []models.AttackKind) (*models.CrackResult, error) {
	logger := d.logger.WithFields(logrus.Fields{"run": runID, "bssid": target.BSSID})

	var techniques []Technique
	for _, kind := range kinds {
		t, err := d.factory(kind, target)
		if err != nil {
			logger.WithField("attack", kind).WithError(err).Warn("Skipping attack")
			continue
		}
		if err := t.Check(); err != nil {
			entry := logger.WithField("attack", kind)
			if errors.Is(err, tools.ErrMissingTool) {
				entry.Warnf("Skipping attack: %v", err)
			} else {
				entry.WithError(err).Warn("Skipping attack")
			}
			continue
		}
		techniques = append(techniques, t)
	}
	if len(techniques) == 0 {
		return nil, ctx.Err()
	}

	techCtx, release := d.control.TechniqueContext(ctx)
	defer release()

	notify := func(out Outcome) {
		for _, o := range d.observers {
			o.AttackFinished(runID, target, out)
		}
	}

	if len(techniques) == 1 {
		logger.WithField("attack", techniques[0].Kind()).Info("Starting attack")
		out := runTechnique(techCtx, techniques[0])
		notify(out)
		return d.settle(ctx, techCtx, logger, out)
	}

	logger.WithField("attacks", kinds).Info("Starting parallel attacks")
	winner, err := RunParallel(techCtx, techniques, ParallelOptions{
		Ceiling:   d.cfg.ParallelGroupTimeout,
		Grace:     d.cfg.ParallelGrace,
		Logger:    d.logger,
		OnOutcome: notify,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Info("Parallel attacks skipped")
		return nil, nil
	}
	if winner == nil {
		return nil, nil
	}
	logger.WithField("attack", winner.Kind).Info("Parallel attack succeeded")
	return winner.Result, nil
}

// settle interprets the outcome of a single technique
func (d *Driver) settle(ctx, techCtx context.Context, logger *logrus.Entry, out Outcome) (*models.CrackResult, error) {
	entry := logger.WithFields(logrus.Fields{"attack": out.Kind, "duration": out.Duration.Round(time.Millisecond)})
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case out.Success():
		entry.Info("Attack succeeded")
		return out.Result, nil
	case techCtx.Err() != nil:
		entry.Info("Attack skipped")
	case out.Err != nil:
		entry.WithError(out.Err).Warn("Attack failed")
	default:
		entry.Info("Attack finished without result")
	}
	return nil, nil
}

// crack fills in the key when a wordlist is configured. It runs once the
// artifact is captured, outside any group ceiling; a failed or skipped crack
// leaves the result uncracked.
func (d *Driver) crack(ctx context.Context, logger *logrus.Entry, result *models.CrackResult) {
	if d.cracker == nil || !d.cracker.Enabled() || result.File == "" || result.Cracked() {
		return
	}

	crackCtx, release := d.control.TechniqueContext(ctx)
	defer release()

	entry := logger.WithFields(logrus.Fields{"type": result.Type, "file": result.File})
	var (
		key string
		ok  bool
		err error
	)
	switch result.Type {
	case models.ResultWPA:
		entry.Info("Cracking handshake")
		key, ok, err = d.cracker.CrackHandshake(crackCtx, result.File, result.BSSID)
	case models.ResultPMKID:
		entry.Info("Cracking PMKID")
		key, ok, err = d.cracker.CrackPMKID(crackCtx, result.File)
	default:
		return
	}

	switch {
	case err != nil:
		entry.WithError(err).Warn("Cracking failed")
	case ok:
		entry.Info("Recovered key")
		*result = result.WithKey(key)
	default:
		entry.Info("Key not in wordlist")
	}
}

func (d *Driver) save(logger *logrus.Entry, result models.CrackResult) {
	if d.store == nil {
		return
	}
	if _, err := d.store.Save(result); err != nil {
		logger.WithError(err).Error("Failed to save result")
	}
}
