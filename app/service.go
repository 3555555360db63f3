// Package app wires the configuration into the simulation pipeline: the
// scenario generator, the batch runner, the analyzer and their sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/platoonsim/config"
	"github.com/kilianp07/platoonsim/core/analysis"
	coremetrics "github.com/kilianp07/platoonsim/core/metrics"
	"github.com/kilianp07/platoonsim/core/model"
	coremon "github.com/kilianp07/platoonsim/core/monitoring"
	"github.com/kilianp07/platoonsim/core/platoon"
	"github.com/kilianp07/platoonsim/core/runner"
	"github.com/kilianp07/platoonsim/core/scenario"
	"github.com/kilianp07/platoonsim/core/signal"
	"github.com/kilianp07/platoonsim/infra/charts"
	"github.com/kilianp07/platoonsim/infra/csvout"
	"github.com/kilianp07/platoonsim/infra/journal"
	"github.com/kilianp07/platoonsim/infra/logger"
	"github.com/kilianp07/platoonsim/infra/metrics"
	"github.com/kilianp07/platoonsim/infra/monitoring"
	"github.com/kilianp07/platoonsim/infra/mqtt"
	"github.com/kilianp07/platoonsim/infra/store"
	"github.com/kilianp07/platoonsim/infra/traci"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

// Service holds the collaborators built from a configuration.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	bus       *eventbus.Bus
	sink      coremetrics.Sink
	journal   runner.Journal
	store     store.Store
	publisher *mqtt.Publisher
	launcher  *traci.Launcher
	runner    *runner.Runner
	generator *scenario.Generator
	analyzer  *analysis.Analyzer

	cancel  context.CancelFunc
	drain   []<-chan struct{}
	prom    <-chan struct{}
	closers []io.Closer
}

// Hooks lets callers replace external collaborators, mainly in tests.
type Hooks struct {
	// Launcher replaces the SUMO launcher of the runner.
	Launcher runner.Launcher
}

// New builds a Service from cfg. Background collectors run until Close.
func New(cfg *config.Config) (*Service, error) {
	return NewWithHooks(cfg, Hooks{})
}

// NewWithHooks is New with injectable collaborators.
func NewWithHooks(cfg *config.Config, hooks Hooks) (svc *Service, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{cfg: cfg, cancel: cancel}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if err := s.configureLogging(); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	s.log = logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	s.sink = sink

	s.bus = eventbus.New()
	s.drain = append(s.drain, metrics.StartEventCollector(ctx, s.bus, sink))

	if addr := cfg.Metrics.PrometheusAddr; addr != "" {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.StartPromServer(ctx, addr, prometheus.DefaultGatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
		s.prom = done
	}

	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewPublisher(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.publisher = pub
		s.drain = append(s.drain, pub.Start(ctx, s.bus))
	}

	if s.journal, err = journal.New(cfg.Journal); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if s.store, err = store.New(cfg.Store); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s.launcher = traci.NewLauncher(cfg.Simulation.SUMO, logger.New("traci"))
	launcher := hooks.Launcher
	if launcher == nil {
		launcher = sumoLauncher{s.launcher}
	}
	s.runner = runner.New(cfg.Simulation.Run, runner.Options{
		Signals:  cfg.Signals,
		Collect:  cfg.Collect,
		Corridor: cfg.Simulation.Corridor,
		Launcher: launcher,
		Output:   csvout.Writer{},
		Sink:     sink,
		Bus:      s.bus,
		Journal:  s.journal,
		Log:      logger.New("runner"),
	})
	s.generator = scenario.NewGenerator(cfg.Scenario, cfg.Simulation.Corridor, platoon.DefaultConfig(), logger.New("scenario"))

	var (
		summaries analysis.SummaryStore
		chartW    analysis.ChartWriter
	)
	if s.store != nil {
		summaries = s.store
	}
	if !cfg.Analysis.SkipCharts {
		chartW = charts.Writer{}
	}
	s.analyzer = analysis.NewAnalyzer(csvout.Writer{}, csvout.Writer{}, summaries, chartW, logger.New("analysis"))
	return s, nil
}

func (s *Service) configureLogging() error {
	lc := s.cfg.Logging
	opts := logger.Options{Level: lc.Level, Format: lc.Format}
	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
		}
		opts.Out = lj
		s.closers = append(s.closers, lj)
	}
	return logger.Configure(opts)
}

// Bus exposes the run event bus, used by the progress view.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.cfg }

// Scenarios returns the sweep described by the configuration.
func (s *Service) Scenarios() ([]model.Scenario, error) { return s.cfg.Scenario.Scenarios() }

// Generate writes the scenario files of the configured sweep.
func (s *Service) Generate(ctx context.Context) (scenario.Result, error) {
	scs, err := s.Scenarios()
	if err != nil {
		return scenario.Result{}, err
	}
	res, err := s.generator.Generate(ctx, scs)
	if err != nil {
		return res, err
	}
	if len(res.Failed) > 0 {
		errs := make([]error, len(res.Failed))
		for i, f := range res.Failed {
			errs[i] = fmt.Errorf("%s: %w", f.Scenario.Name(), f.Err)
		}
		return res, errors.Join(errs...)
	}
	return res, nil
}

// Run executes every scenario configuration of the config directory.
func (s *Service) Run(ctx context.Context) ([]runner.Result, error) {
	return s.runner.RunAll(ctx, s.cfg.Simulation.Run.ConfigDir)
}

// Analyze summarizes the run outputs and writes the sweep table and charts.
func (s *Service) Analyze(ctx context.Context) ([]model.Summary, error) {
	return s.analyzer.AnalyzeDir(ctx, s.cfg.Analysis.InputDir)
}

// BuildMapping starts the simulator on sumocfg, records the traffic signal
// link mapping and writes it to the configured mapping file.
func (s *Service) BuildMapping(ctx context.Context, sumocfg string) (signal.Mapping, error) {
	sess, err := s.launcher.Launch(ctx, sumocfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.log.Warnf("close simulator: %v", cerr)
		}
	}()
	m, err := signal.BuildMapping(sess)
	if err != nil {
		return nil, err
	}
	if err := signal.WriteMappingFile(s.cfg.Signals.MappingFile, m); err != nil {
		return nil, err
	}
	s.log.Infof("wrote mapping of %d traffic lights to %s", len(m), s.cfg.Signals.MappingFile)
	return m, nil
}

// History queries the run journal.
func (s *Service) History(ctx context.Context, q runner.Query) ([]runner.Record, error) {
	return s.journal.Query(ctx, q)
}

// Summaries lists the stored run summaries.
func (s *Service) Summaries(ctx context.Context, f store.Filter) ([]model.Summary, error) {
	if s.store == nil {
		return nil, errors.New("summary store disabled")
	}
	return s.store.Summaries(ctx, f)
}

// Close lets the bus consumers drain, stops the prometheus server and
// releases the journal, store, publisher and sinks.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	timeout := time.After(5 * time.Second)
	for _, done := range s.drain {
		select {
		case <-done:
		case <-timeout:
		}
	}
	s.drain = nil
	if s.cancel != nil {
		s.cancel()
	}
	if s.prom != nil {
		<-s.prom
		s.prom = nil
	}
	var errs []error
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(coremetrics.Closer); ok {
		c.Close()
	}
	s.sink = nil
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

type sumoLauncher struct{ l *traci.Launcher }

func (s sumoLauncher) Launch(ctx context.Context, sumocfg string) (runner.Session, error) {
	sess, err := s.l.Launch(ctx, sumocfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
