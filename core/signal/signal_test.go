package signal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/sim"
	"github.com/kilianp07/platoonsim/core/sim/simtest"
	"github.com/kilianp07/platoonsim/infra/logger"
)

type platoons map[string]string

func (p platoons) PlatoonID(id string) string { return p[id] }

// intersection builds a light "tl" with a corridor approach "n" and a side
// approach "w", each 400 m long. Phase 0 (2 s) is the corridor green and
// phase 1 (3 s) the side green.
func intersection() *simtest.Fake {
	f := simtest.New()
	f.AddEdge("n", 1, 400)
	f.AddEdge("w", 1, 400)
	f.AddEdge("s", 1, 400)
	f.AddLight("tl", [][]sim.Link{
		{{From: "n_0", To: "s_0", Via: ":tl_0"}},
		{{From: "w_0", To: "s_0", Via: ":tl_1"}},
	}, 2, 3)
	return f
}

var corridor = model.Corridor{Northbound: []string{"n", "s"}}

func newController(f *simtest.Fake, m Mapping, p platoons) *Controller {
	cfg := Config{MainRoadGreenPhases: map[string][]int{"tl": {0}, "missing": {0}}}
	return NewController(cfg, corridor, m, p, f, logger.NopLogger{})
}

func steps(t *testing.T, c *Controller, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, c.Step())
	}
}

func phases(f *simtest.Fake) []int {
	var out []int
	for _, c := range f.PhaseCalls {
		out = append(out, c.Index)
	}
	return out
}

func TestControllerFixedTime(t *testing.T) {
	f := intersection()
	c := newController(f, nil, platoons{})
	require.NoError(t, c.Init())
	assert.Equal(t, []string{"tl"}, c.Controlled())

	steps(t, c, 1)
	assert.Empty(t, f.PhaseCalls)
	steps(t, c, 1)
	assert.Equal(t, []int{1}, phases(f))
	steps(t, c, 3)
	assert.Equal(t, []int{1, 0}, phases(f))
	assert.Zero(t, c.Extensions())
}

func TestControllerExtendsGreenForPlatoon(t *testing.T) {
	f := intersection()
	f.AddVehicle(simtest.Vehicle{ID: "t0", Type: "truck_platoon_leader", Lane: "n_0", LanePos: 300})
	c := newController(f, nil, platoons{"t0": "platoon_0"})
	require.NoError(t, c.Init())

	steps(t, c, 5)
	assert.Empty(t, f.PhaseCalls)
	assert.Equal(t, 4, c.Extensions())

	f.RemoveVehicle("t0")
	steps(t, c, 1)
	assert.Equal(t, []int{1}, phases(f))
}

func TestControllerIgnoresFarOrUnplatoonedTrucks(t *testing.T) {
	tests := []struct {
		name string
		veh  simtest.Vehicle
		p    platoons
	}{
		{"far from stop line", simtest.Vehicle{ID: "t0", Type: "truck", Lane: "n_0", LanePos: 100}, platoons{"t0": "p"}},
		{"not in platoon", simtest.Vehicle{ID: "t0", Type: "truck", Lane: "n_0", LanePos: 390}, platoons{}},
		{"car in platoon", simtest.Vehicle{ID: "c0", Type: "car", Lane: "n_0", LanePos: 390}, platoons{"c0": "p"}},
		{"side approach", simtest.Vehicle{ID: "t0", Type: "truck", Lane: "w_0", LanePos: 390}, platoons{"t0": "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := intersection()
			f.AddVehicle(tt.veh)
			c := newController(f, nil, tt.p)
			require.NoError(t, c.Init())
			steps(t, c, 2)
			assert.Equal(t, []int{1}, phases(f))
		})
	}
}

func TestControllerUsesMappingByFlatIndex(t *testing.T) {
	f := intersection()
	f.AddVehicle(simtest.Vehicle{ID: "t0", Type: "truck", Lane: "w_0", LanePos: 390})
	m := Mapping{"tl": {
		"0": {IncomingLane: "n_0", EdgeID: "n"},
		"1": {IncomingLane: "w_0", EdgeID: "s"},
	}}
	c := newController(f, m, platoons{"t0": "p"})
	require.NoError(t, c.Init())
	steps(t, c, 3)
	assert.Empty(t, f.PhaseCalls)
}

func TestControllerUnknownMappedEdgeIsNotCorridor(t *testing.T) {
	f := intersection()
	f.AddVehicle(simtest.Vehicle{ID: "t0", Type: "truck", Lane: "n_0", LanePos: 390})
	m := Mapping{"tl": {"0": {IncomingLane: "n_0", EdgeID: UnknownEdge}}}
	c := newController(f, m, platoons{"t0": "p"})
	require.NoError(t, c.Init())
	steps(t, c, 2)
	assert.Equal(t, []int{1}, phases(f))
	assert.Zero(t, c.Extensions())
}

func TestControllerResetsOutOfRangePhase(t *testing.T) {
	f := intersection()
	f.Lights["tl"].Phase = 7
	c := newController(f, nil, platoons{})
	require.NoError(t, c.Init())
	steps(t, c, 2)
	assert.Equal(t, []int{1}, phases(f))
}

func TestControllerSkipsLightsWithoutProgram(t *testing.T) {
	f := intersection()
	f.Lights["tl"].Logics = nil
	c := newController(f, nil, platoons{})
	require.NoError(t, c.Init())
	assert.Empty(t, c.Controlled())
	steps(t, c, 3)
	assert.Empty(t, f.PhaseCalls)
}

func TestBuildMapping(t *testing.T) {
	f := intersection()
	f.AddLight("tl2", [][]sim.Link{{{From: "ghost_0", To: "s_0"}, {From: "w_0", To: "s_0"}}}, 1)

	m, err := BuildMapping(f)
	require.NoError(t, err)
	assert.Equal(t, LaneInfo{IncomingLane: "w_0", EdgeID: "w"}, m["tl"]["1"])
	assert.Equal(t, UnknownEdge, m["tl2"]["0"].EdgeID)
	assert.Equal(t, "w", m["tl2"]["1"].EdgeID)

	edge, ok := m.Edge("tl2", 1)
	assert.True(t, ok)
	assert.Equal(t, "w", edge)
	edge, ok = m.Edge("tl2", 0)
	assert.True(t, ok)
	assert.Equal(t, UnknownEdge, edge)
	_, ok = Mapping(nil).Edge("tl", 0)
	assert.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	assert.Contains(t, buf.String(), `"incoming_lane": "n_0"`)

	path := filepath.Join(t.TempDir(), "traffic_signal_mapping.json")
	require.NoError(t, WriteMappingFile(path, m))
	loaded, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = LoadMapping(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 150.0, c.DetectionDistance)
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{DetectionDistance: 1, MainRoadGreenPhases: map[string][]int{"x": {-1}}}.Validate())
}
