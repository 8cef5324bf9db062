// Package api serves the live state of an attack run and the stored results
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/attack"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
)

// Compile-time interface check.
var _ attack.Observer = (*Dashboard)(nil)

const shutdownTimeout = 5 * time.Second

// AttackView is one finished technique as reported by the API
type AttackView struct {
	Kind     models.AttackKind `json:"kind"`
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Duration string            `json:"duration"`
}

// Status is the state of the current run
type Status struct {
	RunID     string              `json:"run_id,omitempty"`
	Running   bool                `json:"running"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
	Targets   int                 `json:"targets"`
	Attacked  int                 `json:"attacked"`
	Captured  int                 `json:"captured"`
	Target    *models.Target      `json:"target,omitempty"`
	Plan      []models.AttackKind `json:"plan,omitempty"`
	Attacks   []AttackView        `json:"attacks,omitempty"`
}

// PlanView is the attack plan the sequencer would build for a target
type PlanView struct {
	Target   models.Target       `json:"target"`
	Analysis attack.Analysis     `json:"analysis"`
	Steps    []models.AttackStep `json:"steps"`
}

// Dashboard represents the status API server
type Dashboard struct {
	router  *gin.Engine
	logger  *logrus.Logger
	config  DashboardConfig
	policy  attack.Policy
	store   *results.Store
	metrics *Metrics

	mu      sync.RWMutex
	targets []models.Target
	status  Status
	runs    []attack.Summary
}

// DashboardConfig contains configuration for the dashboard
type DashboardConfig struct {
	Addr           string
	EnableCORS     bool
	ResultsHistory int // Finished runs kept for /api/runs
}

// NewDashboard creates the API server. store and metrics may be nil; without
// metrics there is no /metrics endpoint.
func NewDashboard(config DashboardConfig, policy attack.Policy, store *results.Store, metrics *Metrics, logger *logrus.Logger) *Dashboard {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8080"
	}
	if config.ResultsHistory <= 0 {
		config.ResultsHistory = 10
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	d := &Dashboard{
		router:  router,
		logger:  logger,
		config:  config,
		policy:  policy,
		store:   store,
		metrics: metrics,
	}
	d.setupRoutes()
	return d
}

// setupRoutes configures the API routes
func (d *Dashboard) setupRoutes() {
	d.router.Use(d.requestLogger())

	if d.config.EnableCORS {
		d.router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
		})
	}

	api := d.router.Group("/api")
	{
		api.GET("/status", d.handleStatus)
		api.GET("/targets", d.handleTargets)
		api.GET("/targets/:bssid", d.handleTarget)
		api.GET("/plan/:bssid", d.handlePlan)
		api.GET("/results", d.handleResults)
		api.GET("/runs", d.handleRuns)
	}

	if d.metrics != nil {
		d.router.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}
}

func (d *Dashboard) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		}).Debug("API request")
	}
}

// Handler returns the HTTP handler, for embedding and tests
func (d *Dashboard) Handler() http.Handler {
	return d.router
}

// Start serves until ctx is cancelled, then shuts the server down
func (d *Dashboard) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.config.Addr,
		Handler:           d.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	d.logger.Infof("Status API listening on http://%s", d.config.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// UpdateTargets replaces the target list with the latest scan
func (d *Dashboard) UpdateTargets(targets []models.Target) {
	cloned := make([]models.Target, len(targets))
	for i, t := range targets {
		cloned[i] = t.Clone()
	}

	d.mu.Lock()
	d.targets = cloned
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.SetVisibleTargets(len(targets))
	}
}

// RunStarted implements attack.Observer
func (d *Dashboard) RunStarted(runID string, targets []models.Target) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = Status{
		RunID:     runID,
		Running:   true,
		StartedAt: &now,
		Targets:   len(targets),
	}
}

// TargetStarted implements attack.Observer
func (d *Dashboard) TargetStarted(runID string, plan models.AttackPlan) {
	target := plan.Target.Clone()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Attacked++
	d.status.Target = &target
	d.status.Plan = plan.Kinds()
	d.status.Attacks = nil
}

// AttackFinished implements attack.Observer
func (d *Dashboard) AttackFinished(runID string, target models.Target, out attack.Outcome) {
	view := AttackView{
		Kind:     out.Kind,
		Success:  out.Success(),
		Duration: out.Duration.Round(time.Millisecond).String(),
	}
	if out.Err != nil {
		view.Error = out.Err.Error()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Attacks = append(d.status.Attacks, view)
}

// TargetFinished implements attack.Observer
func (d *Dashboard) TargetFinished(runID string, target models.Target, result *models.CrackResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if result != nil {
		d.status.Captured++
	}
	d.status.Target = nil
	d.status.Plan = nil
}

// RunFinished implements attack.Observer
func (d *Dashboard) RunFinished(summary attack.Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Running = false
	d.status.Target = nil
	d.status.Plan = nil

	d.runs = append(d.runs, summary)
	if len(d.runs) > d.config.ResultsHistory {
		d.runs = d.runs[len(d.runs)-d.config.ResultsHistory:]
	}
}

func (d *Dashboard) handleStatus(c *gin.Context) {
	d.mu.RLock()
	status := d.status
	status.Attacks = append([]AttackView(nil), d.status.Attacks...)
	d.mu.RUnlock()

	c.JSON(http.StatusOK, status)
}

func (d *Dashboard) handleTargets(c *gin.Context) {
	d.mu.RLock()
	targets := append([]models.Target{}, d.targets...)
	d.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"count":   len(targets),
		"targets": targets,
	})
}

// findTarget looks a target up by BSSID in the latest scan
func (d *Dashboard) findTarget(bssid string) (models.Target, bool) {
	bssid = models.NormalizeMAC(bssid)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.targets {
		if t.BSSID == bssid {
			return t.Clone(), true
		}
	}
	return models.Target{}, false
}

func (d *Dashboard) handleTarget(c *gin.Context) {
	target, ok := d.findTarget(c.Param("bssid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}
	c.JSON(http.StatusOK, target)
}

func (d *Dashboard) handlePlan(c *gin.Context) {
	target, ok := d.findTarget(c.Param("bssid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}

	plan := attack.BuildPlan(target, d.policy)
	steps := plan.Steps
	if steps == nil {
		steps = []models.AttackStep{}
	}
	c.JSON(http.StatusOK, PlanView{
		Target:   target,
		Analysis: attack.Analyze(target),
		Steps:    steps,
	})
}

func (d *Dashboard) handleResults(c *gin.Context) {
	list := []models.CrackResult{}
	if d.store != nil {
		var (
			stored []models.CrackResult
			err    error
		)
		if bssid := c.Query("bssid"); bssid != "" {
			stored, err = d.store.ForBSSID(models.NormalizeMAC(bssid))
		} else {
			stored, err = d.store.Load()
		}
		if err != nil {
			d.logger.Errorf("Failed to load results: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		list = append(list, stored...)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(list),
		"results": list,
	})
}

func (d *Dashboard) handleRuns(c *gin.Context) {
	d.mu.RLock()
	runs := append([]attack.Summary{}, d.runs...)
	d.mu.RUnlock()

	c.JSON(http.StatusOK, runs)
}
