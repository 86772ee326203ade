// Package trigger implements the autonomous control loop that watches live
// variable snapshots, detects threshold-crossing drift against the last
// accepted baseline and re-dispatches optimization runs under a cooldown
// discipline, recording the causal trigger detail for audit.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk/routeopt/core/logger"
	"github.com/tradedesk/routeopt/core/metrics"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
	"github.com/tradedesk/routeopt/internal/eventbus"
)

// Runner executes one engine run. Implemented by solver.Service.
type Runner interface {
	Run(ctx context.Context, req model.SolveRequest, cutoffs model.SignalCutoffs) (*model.SolveResult, *model.Distribution, error)
}

// AuditSink persists accepted outcomes with their trigger causes.
type AuditSink interface {
	SaveOutcome(ctx context.Context, o *model.Outcome) error
}

// NarrativeRequester asks an external service to produce a trader-readable
// explanation for an outcome. Strictly best-effort.
type NarrativeRequester interface {
	RequestNarrative(ctx context.Context, o *model.Outcome) error
}

// ErrBusy is returned by SolveNow while a solve is already in flight.
var ErrBusy = errors.New("trigger: solve already in flight")

// ErrStopped is returned by SolveNow after the loop has shut down.
var ErrStopped = errors.New("trigger: loop stopped")

// Options tunes a Loop beyond the per-group threshold configuration.
type Options struct {
	// FirstDelay schedules the initial evaluation shortly after startup.
	FirstDelay time.Duration
	// NotifyMinProfitDelta is the minimum move in accepted profit for an
	// outcome to be flagged for notification.
	NotifyMinProfitDelta float64
	Objective            model.ObjectiveMode
	Lambda               float64
	ProfitFloor          float64
	// SideEffectTimeout bounds the async audit/narrative calls.
	SideEffectTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.FirstDelay <= 0 {
		o.FirstDelay = 5 * time.Second
	}
	if o.SideEffectTimeout <= 0 {
		o.SideEffectTimeout = 30 * time.Second
	}
}

// Status is a point-in-time view of loop state.
type Status struct {
	ProductGroup string
	HasBaseline  bool
	Running      bool
	LastSolveAt  time.Time
	HistoryLen   int
	ProfitMean   float64
	ProfitStdDev float64
}

type manualRequest struct {
	reply chan error
}

type solveDone struct {
	outcome *model.Outcome
	err     error
}

// Loop is the auto-trigger actor for one product group. All state is owned
// by the goroutine inside Run; external interaction goes through channels.
type Loop struct {
	pg        string
	topo      *model.Topology
	cfgs      *thresholds.Store
	runner    Runner
	results   *eventbus.TypedBus[*model.Outcome]
	audit     AuditSink
	narrative NarrativeRequester
	sink      metrics.Sink
	log       logger.Logger
	opts      Options

	manual    chan manualRequest
	statusReq chan chan Status
	solved    chan solveDone
	stopped   chan struct{}

	baseline   *model.Snapshot
	lastSeen   *model.Snapshot
	history    History
	running    bool
	lastSolve  time.Time
	lastProfit float64
	hasProfit  bool
}

// New creates a Loop. audit, narrative and sink may be nil.
func New(topo *model.Topology, cfgs *thresholds.Store, runner Runner,
	results *eventbus.TypedBus[*model.Outcome], audit AuditSink,
	narrative NarrativeRequester, sink metrics.Sink, log logger.Logger, opts Options) *Loop {
	opts.setDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Loop{
		pg:        topo.ProductGroup,
		topo:      topo,
		cfgs:      cfgs,
		runner:    runner,
		results:   results,
		audit:     audit,
		narrative: narrative,
		sink:      sink,
		log:       log,
		opts:      opts,
		manual:    make(chan manualRequest),
		statusReq: make(chan chan Status),
		solved:    make(chan solveDone, 1),
		stopped:   make(chan struct{}),
	}
}

// SolveNow dispatches a manual run through the same gate as auto triggers,
// so it can never race a threshold-triggered solve.
func (l *Loop) SolveNow(ctx context.Context) error {
	req := manualRequest{reply: make(chan error, 1)}
	select {
	case l.manual <- req:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports current loop state.
func (l *Loop) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case l.statusReq <- reply:
	case <-l.stopped:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Run consumes snapshots until the context is canceled. It owns all loop
// state; handlers never block on the engine — solves run in a spawned
// goroutine gated by the running flag.
func (l *Loop) Run(ctx context.Context, snapshots <-chan model.Snapshot) {
	defer close(l.stopped)

	first := time.NewTimer(l.opts.FirstDelay)
	defer first.Stop()
	fallback := time.NewTimer(l.fallbackInterval())
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if snap.ProductGroup != "" && snap.ProductGroup != l.pg {
				continue
			}
			l.lastSeen = &snap
			l.onUpdate(ctx, snap)

		case <-first.C:
			l.onScheduled(ctx, model.ReasonFirstRun)

		case <-fallback.C:
			l.onScheduled(ctx, model.ReasonFallback)
			fallback.Reset(l.fallbackInterval())

		case req := <-l.manual:
			req.reply <- l.onManual(ctx)

		case done := <-l.solved:
			l.onSolved(ctx, done)

		case reply := <-l.statusReq:
			mean, stddev := l.history.ProfitStats()
			reply <- Status{
				ProductGroup: l.pg,
				HasBaseline:  l.baseline != nil,
				Running:      l.running,
				LastSolveAt:  l.lastSolve,
				HistoryLen:   l.history.Len(),
				ProfitMean:   mean,
				ProfitStdDev: stddev,
			}
		}
	}
}

// fallbackInterval guarantees forward progress even absent live-data events.
func (l *Loop) fallbackInterval() time.Duration {
	iv := time.Hour
	if cfg, ok := l.cfgs.Get(l.pg); ok {
		if v := 12 * cfg.Cooldown; v > iv {
			iv = v
		}
	}
	return iv
}

func (l *Loop) onUpdate(ctx context.Context, snap model.Snapshot) {
	if l.running {
		l.recordSkip("busy")
		return
	}
	cfg, ok := l.cfgs.Get(l.pg)
	if !ok || !cfg.Enabled {
		return
	}
	if l.baseline == nil {
		// First run bypasses delta evaluation entirely.
		l.dispatch(ctx, cfg, snap, model.ReasonFirstRun, nil)
		return
	}
	details := Evaluate(l.baseline.Values, snap.Values, cfg.Thresholds)
	if len(details) == 0 {
		l.recordSkip("no_material_change")
		return
	}
	if time.Since(l.lastSolve) < cfg.Cooldown {
		l.recordSkip("cooldown")
		l.log.Debugw("trigger suppressed by cooldown", map[string]any{
			"product_group": l.pg,
			"top_driver":    details[0].Key,
		})
		return
	}
	l.dispatch(ctx, cfg, snap, model.ReasonThreshold, details)
}

// onScheduled handles the startup evaluation and the periodic fallback tick.
func (l *Loop) onScheduled(ctx context.Context, reason model.TriggerReason) {
	if l.running || l.lastSeen == nil {
		return
	}
	cfg, ok := l.cfgs.Get(l.pg)
	if !ok || !cfg.Enabled {
		return
	}
	if l.baseline == nil {
		l.dispatch(ctx, cfg, *l.lastSeen, model.ReasonFirstRun, nil)
		return
	}
	if time.Since(l.lastSolve) < cfg.Cooldown {
		return
	}
	l.dispatch(ctx, cfg, *l.lastSeen, reason, nil)
}

func (l *Loop) onManual(ctx context.Context) error {
	if l.running {
		return ErrBusy
	}
	cfg, ok := l.cfgs.Get(l.pg)
	if !ok {
		return errors.New("trigger: no configuration for product group")
	}
	snap := l.lastSeen
	if snap == nil {
		snap = &model.Snapshot{ProductGroup: l.pg, At: time.Now()}
	}
	l.dispatch(ctx, cfg, *snap, model.ReasonManual, nil)
	return nil
}

// dispatch marks the loop running before spawning the solve so a second
// trigger can never race in, then hands the blocking engine call to its own
// goroutine. The result is applied back on the actor via l.solved.
func (l *Loop) dispatch(ctx context.Context, cfg thresholds.Config, snap model.Snapshot, reason model.TriggerReason, details []model.TriggerDetail) {
	l.running = true
	mode := model.ModeMonteCarlo
	if cfg.Scenarios <= 0 {
		mode = model.ModeSingle
	}
	idx := model.NewVariableIndex(l.topo)
	req := model.SolveRequest{
		Mode:        mode,
		Topology:    l.topo,
		Vector:      idx.Vector(snap.Values),
		Scenarios:   cfg.Scenarios,
		Objective:   l.opts.Objective,
		Lambda:      l.opts.Lambda,
		ProfitFloor: l.opts.ProfitFloor,
	}
	outcome := &model.Outcome{
		RunID:        uuid.NewString(),
		ProductGroup: l.pg,
		Reason:       reason,
		Triggers:     details,
		Snapshot:     snap,
		StartedAt:    time.Now(),
	}
	l.log.Infof("dispatching %s solve for %s (%d triggers)", reason, l.pg, len(details))

	go func() {
		res, dist, err := l.runner.Run(ctx, req, cfg.Cutoffs)
		outcome.Result = res
		outcome.Distribution = dist
		outcome.FinishedAt = time.Now()
		select {
		case l.solved <- solveDone{outcome: outcome, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Loop) onSolved(ctx context.Context, done solveDone) {
	l.running = false
	o := done.outcome
	rec := metrics.SolveRecord{
		ProductGroup: l.pg,
		Reason:       o.Reason,
		Status:       "transport_error",
		Duration:     o.FinishedAt.Sub(o.StartedAt),
		TriggerCount: len(o.Triggers),
		At:           o.FinishedAt,
	}

	if done.err != nil {
		// Baseline, history and last-solve time stay unchanged so a later
		// event can retry once the cooldown allows.
		l.log.Errorf("solve failed for %s: %v", l.pg, done.err)
		l.recordSolve(rec)
		return
	}

	rec.Status = o.Result.Status.String()
	rec.Profit = o.Result.Profit
	rec.UnitsUsed = o.Result.UnitsUsed
	if o.Distribution != nil {
		rec.Signal = o.Distribution.Signal.String()
	}

	if o.Result.Status != model.StatusOptimal {
		l.log.Warnf("solve for %s returned %s", l.pg, o.Result.Status)
		l.results.Publish(o)
		l.recordSolve(rec)
		return
	}

	o.Notify = l.shouldNotify(o)
	snap := o.Snapshot
	l.baseline = &snap
	l.history.Add(o)
	l.lastSolve = o.FinishedAt
	l.lastProfit = o.Result.Profit
	l.hasProfit = true

	l.results.Publish(o)
	l.recordSolve(rec)
	l.spawnSideEffects(ctx, o)
}

// shouldNotify implements the desk's alerting gate: scheduled fallback runs
// never notify, and the accepted profit must have moved materially.
func (l *Loop) shouldNotify(o *model.Outcome) bool {
	if o.Reason == model.ReasonFallback {
		return false
	}
	if !l.hasProfit {
		return true
	}
	delta := o.Result.Profit - l.lastProfit
	if delta < 0 {
		delta = -delta
	}
	return delta >= l.opts.NotifyMinProfitDelta
}

// spawnSideEffects fires the audit persist and narrative request in isolated
// goroutines. Their failure is logged and never rolls back the accepted run.
func (l *Loop) spawnSideEffects(ctx context.Context, o *model.Outcome) {
	if l.audit != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.SideEffectTimeout)
			defer cancel()
			if err := l.audit.SaveOutcome(sctx, o); err != nil {
				l.log.Errorf("audit persist for run %s: %v", o.RunID, err)
			}
		}()
	}
	if l.narrative != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.SideEffectTimeout)
			defer cancel()
			if err := l.narrative.RequestNarrative(sctx, o); err != nil {
				l.log.Warnf("narrative request for run %s: %v", o.RunID, err)
			}
		}()
	}
}

func (l *Loop) recordSkip(cause string) {
	if sr, ok := l.sink.(metrics.SkipRecorder); ok {
		if err := sr.RecordSkip(l.pg, cause); err != nil {
			l.log.Debugf("metrics skip record: %v", err)
		}
	}
}

func (l *Loop) recordSolve(rec metrics.SolveRecord) {
	if err := l.sink.RecordSolve(rec); err != nil {
		l.log.Debugf("metrics solve record: %v", err)
	}
}
