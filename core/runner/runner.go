// Package runner executes scenario configurations against the simulator.
// Each run drives the step loop (simulation step, platoon update, signal
// control, metric collection) and writes the run outputs. RunAll runs a
// directory of configurations with bounded parallelism.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/platoonsim/core/analysis"
	"github.com/kilianp07/platoonsim/core/collect"
	"github.com/kilianp07/platoonsim/core/events"
	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/monitoring"
	"github.com/kilianp07/platoonsim/core/platoon"
	"github.com/kilianp07/platoonsim/core/scenario"
	"github.com/kilianp07/platoonsim/core/signal"
	"github.com/kilianp07/platoonsim/core/sim"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

// SummaryJSONFile is the machine readable summary written per run.
const SummaryJSONFile = "summary.json"

// Session is a connected simulation that must be closed after use.
type Session interface {
	sim.Simulation
	Close() error
}

// Launcher starts a simulator for a sumocfg file.
type Launcher interface {
	Launch(ctx context.Context, sumocfg string) (Session, error)
}

// OutputWriter persists the outputs of a run directory.
type OutputWriter interface {
	WriteRun(dir string, r analysis.Run) error
	WriteSummary(dir string, s model.Summary) error
}

// Options carries the collaborators of a Runner. Sink, Bus and Journal
// may be nil.
type Options struct {
	Signals  signal.Config
	Collect  collect.Config
	Corridor model.Corridor
	Launcher Launcher
	Output   OutputWriter
	Sink     metrics.Sink
	Bus      eventbus.EventBus
	Journal  Journal
	Log      logger.Logger
}

// Result describes a completed run.
type Result struct {
	RunID    string
	Scenario model.Scenario
	Dir      string
	Steps    int
	Duration time.Duration
	Summary  model.Summary
}

// Runner executes simulation runs.
type Runner struct {
	cfg  Config
	opts Options
	log  logger.Logger

	mappingOnce sync.Once
	mapping     signal.Mapping
	mappingErr  error
}

// New returns a runner. Defaults are applied to cfg and the nil optional
// collaborators are replaced by no-op implementations.
func New(cfg Config, opts Options) *Runner {
	cfg.SetDefaults()
	opts.Signals.SetDefaults()
	opts.Collect.SetDefaults()
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}
	if opts.Journal == nil {
		opts.Journal = NopJournal{}
	}
	return &Runner{cfg: cfg, opts: opts, log: opts.Log}
}

func (r *Runner) publish(ev eventbus.Event) {
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(ev)
	}
}

func (r *Runner) journal(ctx context.Context, rec Record) {
	rec.Timestamp = time.Now()
	if err := r.opts.Journal.Append(ctx, rec); err != nil {
		r.log.Warnf("journal %s: %v", rec.RunID, err)
	}
}

// signalMapping loads the link mapping once per runner.
func (r *Runner) signalMapping() (signal.Mapping, error) {
	r.mappingOnce.Do(func() {
		path := r.opts.Signals.MappingFile
		m, err := signal.LoadMapping(path)
		switch {
		case err == nil:
			r.mapping = m
		case errors.Is(err, os.ErrNotExist) && r.opts.Signals.MappingOptional:
			r.log.Warnf("signal mapping %s not found, using lane edges", path)
		default:
			r.mappingErr = fmt.Errorf("signal mapping: %w", err)
		}
	})
	return r.mapping, r.mappingErr
}

// RunAll runs every scenario configuration in dir. An empty dir uses the
// configured ConfigDir. Failed runs do not stop the others; their errors
// are returned joined after every run has ended.
func (r *Runner) RunAll(ctx context.Context, dir string) ([]Result, error) {
	if dir == "" {
		dir = r.cfg.ConfigDir
	}
	jobs, err := Discover(dir, r.log)
	if err != nil {
		return nil, err
	}
	if _, err := r.signalMapping(); err != nil {
		return nil, err
	}
	r.log.Infof("running %d scenarios from %s (parallel %d)", len(jobs), dir, r.cfg.MaxParallel)

	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for i, job := range jobs {
		i, job := i, job
		if ctx.Err() != nil {
			errs[i] = fmt.Errorf("%s: %w", job.Scenario.Name(), ctx.Err())
			continue
		}
		g.Go(func() error {
			tags := map[string]string{"scenario": job.Scenario.Name()}
			err := monitoring.Guard(tags, func() error {
				res, err := r.RunOne(ctx, job)
				if err != nil {
					return err
				}
				results[i] = &res
				return nil
			})
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", job.Scenario.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, errors.Join(errs...)
}

// RunOne simulates job and writes its outputs. Rows collected before a
// simulator error or a panic are still written; the error is returned with
// the partial result.
func (r *Runner) RunOne(ctx context.Context, job Job) (Result, error) {
	res := Result{
		RunID:    uuid.NewString(),
		Scenario: job.Scenario,
		Dir:      filepath.Join(r.cfg.OutputDir, job.Scenario.Name()),
	}
	start := time.Now()
	rec := Record{RunID: res.RunID, Scenario: job.Scenario, Config: job.ConfigPath}

	err := recovered(func() error { return r.run(ctx, job, &res) })
	res.Duration = time.Since(start)

	var summary *model.Summary
	if res.Steps > 0 {
		summary = &res.Summary
	}
	r.publish(events.RunFinished{
		RunID:    res.RunID,
		Scenario: job.Scenario,
		Steps:    res.Steps,
		Duration: res.Duration,
		Summary:  summary,
		Err:      err,
	})
	rec.Steps, rec.Duration = res.Steps, res.Duration
	if err != nil {
		rec.Status, rec.Error = StatusFailed, err.Error()
		r.journal(ctx, rec)
		monitoring.CaptureException(err, map[string]string{
			"run_id":   res.RunID,
			"scenario": job.Scenario.Name(),
		})
		r.log.Errorf("run %s (%s) failed after %d steps: %v", job.Scenario.Name(), res.RunID, res.Steps, err)
		return res, err
	}
	rec.Status = StatusFinished
	r.journal(ctx, rec)
	r.log.Infof("run %s (%s) finished: %d steps in %s", job.Scenario.Name(), res.RunID, res.Steps, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (r *Runner) run(ctx context.Context, job Job, res *Result) (err error) {
	if err := job.Scenario.Validate(); err != nil {
		return err
	}
	mapping, err := r.signalMapping()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	sess, err := r.opts.Launcher.Launch(ctx, job.ConfigPath)
	if err != nil {
		return fmt.Errorf("launch simulator: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.log.Warnf("close simulator of %s: %v", res.RunID, cerr)
		}
	}()

	r.publish(events.RunStarted{
		RunID:    res.RunID,
		Scenario: job.Scenario,
		Config:   job.ConfigPath,
		MaxSteps: r.cfg.MaxSteps,
		Time:     time.Now(),
	})
	r.journal(ctx, Record{RunID: res.RunID, Scenario: job.Scenario, Config: job.ConfigPath, Status: StatusStarted})

	manager, membership := r.platoons(job, sess)
	ctrl := signal.NewController(r.opts.Signals, r.opts.Corridor, mapping, membership, sess, r.log)
	if err := ctrl.Init(); err != nil {
		return fmt.Errorf("init signals: %w", err)
	}
	col := collect.New(r.opts.Collect, r.opts.Corridor, sess, membership, r.log)
	if err := col.Init(); err != nil {
		return fmt.Errorf("init collector: %w", err)
	}

	loopErr := r.loop(ctx, res, sess, manager, ctrl, col)

	run := analysis.Run{
		RunID:    res.RunID,
		Scenario: job.Scenario,
		Steps:    col.Steps,
		Global:   col.Global,
		Vehicles: col.Vehicles,
		Platoons: col.Platoons,
		Fuel:     col.Fuel,
	}
	res.Summary = analysis.Summarize(run)
	if werr := r.writeOutputs(res.Dir, run, res.Summary); werr != nil {
		return errors.Join(loopErr, werr)
	}
	if loopErr == nil {
		if serr := r.opts.Sink.RecordSummary(res.Summary); serr != nil {
			r.log.Warnf("record summary of %s: %v", res.RunID, serr)
		}
	}
	return loopErr
}

// platoons selects the native platoon manager when the scenario directory
// carries a platoon configuration and falls back to vehicle type names.
func (r *Runner) platoons(job Job, sess Session) (*platoon.Manager, collect.Membership) {
	path := filepath.Join(filepath.Dir(job.ConfigPath), scenario.SimplaDir, scenario.SimplaFile)
	pc, err := platoon.LoadConfig(path)
	if err != nil {
		r.log.Warnf("platoon config %s unavailable, classifying by vehicle type: %v", path, err)
		return nil, platoon.TypeMembership{Vehicles: sess}
	}
	m := platoon.NewManager(pc, sess, r.log)
	return m, m
}

// recovered runs fn and turns a panic into an error.
func recovered(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *Runner) loop(ctx context.Context, res *Result, sess Session, manager *platoon.Manager, ctrl *signal.Controller, col *collect.Collector) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step %d: panic: %v", res.Steps+1, p)
		}
	}()
	for step := 1; step <= r.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sess.Step(0); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		platoons := 0
		if manager != nil {
			now, err := sess.Time()
			if err != nil {
				return fmt.Errorf("step %d: time: %w", step, err)
			}
			if err := manager.Update(now); err != nil {
				return fmt.Errorf("step %d: platoons: %w", step, err)
			}
			platoons = len(manager.Platoons())
		}
		if err := ctrl.Step(); err != nil {
			return fmt.Errorf("step %d: signals: %w", step, err)
		}
		if err := col.Collect(step); err != nil {
			return fmt.Errorf("step %d: collect: %w", step, err)
		}
		res.Steps = step

		last := col.Steps[len(col.Steps)-1]
		if step%r.cfg.StepInterval == 0 {
			if err := r.opts.Sink.RecordStep(metrics.StepEvent{
				RunID:      res.RunID,
				Scenario:   res.Scenario,
				Metrics:    last,
				Platoons:   platoons,
				Extensions: ctrl.Extensions(),
				Time:       time.Now(),
			}); err != nil {
				r.log.Debugf("record step: %v", err)
			}
		}
		if step%r.cfg.ProgressEvery == 0 || step == r.cfg.MaxSteps {
			r.publish(events.RunProgress{
				RunID:    res.RunID,
				Scenario: res.Scenario,
				Step:     step,
				MaxSteps: r.cfg.MaxSteps,
				Vehicles: last.NumVehicles,
				Platoons: platoons,
				Time:     time.Now(),
			})
		}
		r.log.Debugw("step", map[string]any{"run_id": res.RunID, "step": step, "vehicles": last.NumVehicles})

		if r.cfg.StopWhenEmpty {
			n, err := sess.MinExpectedVehicles()
			if err != nil {
				return fmt.Errorf("step %d: expected vehicles: %w", step, err)
			}
			if n == 0 {
				r.log.Infof("run %s: no vehicles left after step %d", res.RunID, step)
				return nil
			}
		}
	}
	return nil
}

func (r *Runner) writeOutputs(dir string, run analysis.Run, s model.Summary) error {
	if err := r.opts.Output.WriteRun(dir, run); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := analysis.WriteSummaryFile(filepath.Join(dir, analysis.SummaryTextFile), s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := r.opts.Output.WriteSummary(dir, s); err != nil {
		return fmt.Errorf("write %s: %w", SummaryJSONFile, err)
	}
	return nil
}
