package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/analysis"
	"github.com/kilianp07/platoonsim/core/collect"
	"github.com/kilianp07/platoonsim/core/events"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/platoon"
	"github.com/kilianp07/platoonsim/core/scenario"
	"github.com/kilianp07/platoonsim/core/signal"
	"github.com/kilianp07/platoonsim/core/sim"
	"github.com/kilianp07/platoonsim/core/sim/simtest"
	"github.com/kilianp07/platoonsim/infra/logger"
	"github.com/kilianp07/platoonsim/internal/eventbus"
)

type fakeSession struct {
	*simtest.Fake
	closed bool
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	failures map[string]error
	setup    func(f *simtest.Fake)
	panics   bool
}

func (l *fakeLauncher) Launch(_ context.Context, cfg string) (Session, error) {
	if l.panics {
		panic("simulator exploded")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures[filepath.Base(cfg)]; err != nil {
		return nil, err
	}
	f := simtest.New()
	f.AddEdge("n", 1, 1000)
	f.AddVehicle(simtest.Vehicle{ID: "car0", Type: "car", Road: "n", Lane: "n_0", Speed: 10, Fuel: 2})
	f.Edges["n"].VehicleCount = 1
	f.Edges["n"].MeanSpeed = 10
	if l.setup != nil {
		l.setup(f)
	}
	s := &fakeSession{Fake: f}
	if l.sessions == nil {
		l.sessions = map[string]*fakeSession{}
	}
	l.sessions[filepath.Base(cfg)] = s
	return s, nil
}

type memOutput struct {
	mu        sync.Mutex
	runs      map[string]analysis.Run
	summaries map[string]model.Summary
}

func newMemOutput() *memOutput {
	return &memOutput{runs: map[string]analysis.Run{}, summaries: map[string]model.Summary{}}
}

func (m *memOutput) WriteRun(dir string, r analysis.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[filepath.Base(dir)] = r
	return nil
}

func (m *memOutput) WriteSummary(dir string, s model.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[filepath.Base(dir)] = s
	return nil
}

type memJournal struct {
	NopJournal
	mu      sync.Mutex
	records []Record
}

func (j *memJournal) Append(_ context.Context, r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func (j *memJournal) statuses() map[string]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := map[string]int{}
	for _, r := range j.records {
		out[r.Status]++
	}
	return out
}

func writeConfigs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("<configuration/>"), 0o644))
	}
	return dir
}

func newRunner(t *testing.T, cfg Config, l Launcher, out OutputWriter, opts ...func(*Options)) *Runner {
	t.Helper()
	cfg.OutputDir = t.TempDir()
	o := Options{
		Signals:  signal.Config{MappingFile: filepath.Join(t.TempDir(), "missing.json"), MappingOptional: true},
		Collect:  collect.Config{},
		Corridor: model.Corridor{Northbound: []string{"n"}},
		Launcher: l,
		Output:   out,
		Log:      logger.NopLogger{},
	}
	for _, f := range opts {
		f(&o)
	}
	return New(cfg, o)
}

func TestDiscover(t *testing.T) {
	dir := writeConfigs(t,
		"config_ps4_np10_traffic_heavy_traffic.sumocfg",
		"config_ps2_np10_traffic_light_traffic.sumocfg",
		"notes.sumocfg",
		"routes_ps2_np10_traffic_light_traffic.rou.xml",
	)
	jobs, err := Discover(dir, logger.NopLogger{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, model.Scenario{PlatoonSize: 2, NumPlatoons: 10, Traffic: model.TrafficLight}, jobs[0].Scenario)
	assert.Equal(t, filepath.Join(dir, "config_ps4_np10_traffic_heavy_traffic.sumocfg"), jobs[1].ConfigPath)

	_, err = Discover(writeConfigs(t, "notes.sumocfg"), logger.NopLogger{})
	assert.Error(t, err)
	_, err = Discover(filepath.Join(t.TempDir(), "nope"), logger.NopLogger{})
	assert.Error(t, err)
}

func TestRunAllWritesOutputs(t *testing.T) {
	dir := writeConfigs(t,
		"config_ps2_np1_traffic_light_traffic.sumocfg",
		"config_ps4_np1_traffic_heavy_traffic.sumocfg",
	)
	l := &fakeLauncher{}
	out := newMemOutput()
	bus := eventbus.New()
	sub := bus.Subscribe()
	journal := &memJournal{}
	r := newRunner(t, Config{MaxSteps: 5, ProgressEvery: 2, MaxParallel: 2}, l, out, func(o *Options) {
		o.Bus = bus
		o.Journal = journal
	})

	results, err := r.RunAll(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.Equal(t, 5, res.Steps)
		assert.NotEmpty(t, res.RunID)
		assert.FileExists(t, filepath.Join(res.Dir, analysis.SummaryTextFile))
		run := out.runs[res.Scenario.Name()]
		assert.Len(t, run.Steps, 5)
		assert.Equal(t, 1, run.Steps[0].NorthboundFlow)
		assert.InDelta(t, 10.0, out.summaries[res.Scenario.Name()].Values[model.KeyAverageSpeed], 1e-9)
	}
	for name, s := range l.sessions {
		assert.True(t, s.closed, name)
	}
	assert.Equal(t, map[string]int{StatusStarted: 2, StatusFinished: 2}, journal.statuses())

	counts := map[string]int{}
	for len(sub) > 0 {
		switch (<-sub).(type) {
		case events.RunStarted:
			counts["started"]++
		case events.RunProgress:
			counts["progress"]++
		case events.RunFinished:
			counts["finished"]++
		}
	}
	// progress at steps 2, 4 and the final step 5
	assert.Equal(t, map[string]int{"started": 2, "progress": 6, "finished": 2}, counts)
}

func TestRunOneKeepsRowsOnSimulatorError(t *testing.T) {
	boom := errors.New("connection reset")
	l := &fakeLauncher{setup: func(f *simtest.Fake) {
		f.OnStep = func(f *simtest.Fake) {
			if f.Now == 2 {
				f.StepErr = boom
			}
		}
	}}
	out := newMemOutput()
	journal := &memJournal{}
	r := newRunner(t, Config{MaxSteps: 10}, l, out, func(o *Options) { o.Journal = journal })

	sc := model.Scenario{PlatoonSize: 2, NumPlatoons: 1, Traffic: model.TrafficLight}
	res, err := r.RunOne(context.Background(), Job{Scenario: sc, ConfigPath: "config_ps2_np1_traffic_light_traffic.sumocfg"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 3")
	assert.Equal(t, 2, res.Steps)
	assert.Len(t, out.runs[sc.Name()].Steps, 2)
	assert.True(t, l.sessions["config_ps2_np1_traffic_light_traffic.sumocfg"].closed)
	assert.Equal(t, 1, journal.statuses()[StatusFailed])
}

func TestRunOneStopsWhenEmpty(t *testing.T) {
	l := &fakeLauncher{setup: func(f *simtest.Fake) { f.Expected = 0 }}
	out := newMemOutput()
	r := newRunner(t, Config{MaxSteps: 50, StopWhenEmpty: true}, l, out)

	sc := model.Scenario{PlatoonSize: 2, NumPlatoons: 0, Traffic: model.TrafficPlatoonOnly}
	res, err := r.RunOne(context.Background(), Job{Scenario: sc, ConfigPath: "x.sumocfg"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
}

func TestRunOneUsesPlatoonConfig(t *testing.T) {
	cfgDir := t.TempDir()
	simplaDir := filepath.Join(cfgDir, scenario.SimplaDir)
	require.NoError(t, os.MkdirAll(simplaDir, 0o755))
	f, err := os.Create(filepath.Join(simplaDir, scenario.SimplaFile))
	require.NoError(t, err)
	require.NoError(t, platoon.DefaultConfig().WriteXML(f))
	require.NoError(t, f.Close())

	l := &fakeLauncher{setup: func(f *simtest.Fake) {
		f.AddVehicle(simtest.Vehicle{ID: "t0", Type: "truck", Road: "n", Lane: "n_0", LanePos: 100, Speed: 20})
		f.AddVehicle(simtest.Vehicle{ID: "t1", Type: "truck", Road: "n", Lane: "n_0", LanePos: 90, Speed: 20,
			Leader: sim.Leader{ID: "t0", Distance: 3}})
	}}
	r := newRunner(t, Config{MaxSteps: 2}, l, newMemOutput())
	sc := model.Scenario{PlatoonSize: 2, NumPlatoons: 1, Traffic: model.TrafficPlatoonOnly}
	cfgPath := filepath.Join(cfgDir, scenario.ConfigFile(sc))
	_, err = r.RunOne(context.Background(), Job{Scenario: sc, ConfigPath: cfgPath})
	require.NoError(t, err)

	v, ok := l.sessions[filepath.Base(cfgPath)].Vehicle("t1")
	require.True(t, ok)
	assert.Equal(t, "truck_platoon_follower", v.Type)
}

func TestRunAllContinuesAfterFailure(t *testing.T) {
	dir := writeConfigs(t,
		"config_ps2_np1_traffic_light_traffic.sumocfg",
		"config_ps4_np1_traffic_light_traffic.sumocfg",
	)
	l := &fakeLauncher{failures: map[string]error{
		"config_ps2_np1_traffic_light_traffic.sumocfg": errors.New("no sumo"),
	}}
	journal := &memJournal{}
	r := newRunner(t, Config{MaxSteps: 3}, l, newMemOutput(), func(o *Options) { o.Journal = journal })

	results, err := r.RunAll(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ps2_np1_traffic_light_traffic")
	assert.Contains(t, err.Error(), "no sumo")
	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].Scenario.PlatoonSize)
	assert.Equal(t, 1, journal.statuses()[StatusFailed])
}

func TestRunAllRecoversPanics(t *testing.T) {
	dir := writeConfigs(t, "config_ps2_np1_traffic_light_traffic.sumocfg")
	bus := eventbus.New()
	sub := bus.Subscribe()
	journal := &memJournal{}
	r := newRunner(t, Config{MaxSteps: 3}, &fakeLauncher{panics: true}, newMemOutput(), func(o *Options) {
		o.Bus = bus
		o.Journal = journal
	})
	_, err := r.RunAll(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulator exploded")
	assert.Equal(t, map[string]int{StatusFailed: 1}, journal.statuses())

	var finished []events.RunFinished
	for len(sub) > 0 {
		if ev, ok := (<-sub).(events.RunFinished); ok {
			finished = append(finished, ev)
		}
	}
	require.Len(t, finished, 1)
	require.Error(t, finished[0].Err)
	assert.Contains(t, finished[0].Err.Error(), "simulator exploded")
}

func TestRunOneKeepsRowsOnPanic(t *testing.T) {
	l := &fakeLauncher{setup: func(f *simtest.Fake) {
		f.OnStep = func(f *simtest.Fake) {
			if f.Now == 3 {
				panic("bad vehicle state")
			}
		}
	}}
	out := newMemOutput()
	journal := &memJournal{}
	r := newRunner(t, Config{MaxSteps: 10}, l, out, func(o *Options) { o.Journal = journal })

	sc := model.Scenario{PlatoonSize: 2, NumPlatoons: 1, Traffic: model.TrafficLight}
	res, err := r.RunOne(context.Background(), Job{Scenario: sc, ConfigPath: "config_ps2_np1_traffic_light_traffic.sumocfg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 3: panic: bad vehicle state")
	assert.Equal(t, 2, res.Steps)
	assert.Len(t, out.runs[sc.Name()].Steps, 2)
	assert.True(t, l.sessions["config_ps2_np1_traffic_light_traffic.sumocfg"].closed)
	assert.Equal(t, map[string]int{StatusStarted: 1, StatusFailed: 1}, journal.statuses())
}

func TestRunAllRequiresMapping(t *testing.T) {
	dir := writeConfigs(t, "config_ps2_np1_traffic_light_traffic.sumocfg")
	r := newRunner(t, Config{MaxSteps: 3}, &fakeLauncher{}, newMemOutput(), func(o *Options) {
		o.Signals.MappingOptional = false
	})
	_, err := r.RunAll(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal mapping")
}

func TestRunAllCanceled(t *testing.T) {
	dir := writeConfigs(t, "config_ps2_np1_traffic_light_traffic.sumocfg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(t, Config{MaxSteps: 3}, &fakeLauncher{}, newMemOutput())
	_, err := r.RunAll(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 3600, c.MaxSteps)
	assert.Equal(t, 1, c.MaxParallel)
	assert.Equal(t, "simulation_metrics", c.OutputDir)
	require.NoError(t, c.Validate())
	c.MaxParallel = -1
	assert.Error(t, c.Validate())
}

func TestQueryMatch(t *testing.T) {
	r := Record{RunID: "a", Status: StatusFailed}
	assert.True(t, Query{}.Match(r))
	assert.True(t, Query{Status: StatusFailed, RunID: "a"}.Match(r))
	assert.False(t, Query{Status: StatusFinished}.Match(r))
	assert.False(t, Query{RunID: "b"}.Match(r))
}
