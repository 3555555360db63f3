// Package simtest provides an in-memory sim.Simulation for tests.
package simtest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/platoonsim/core/sim"
)

// Vehicle is the mutable state of a fake vehicle.
type Vehicle struct {
	ID       string
	Type     string
	Road     string
	Lane     string
	Pos      sim.Position
	LanePos  float64
	Speed    float64
	Accel    float64
	Distance float64
	Fuel     float64
	CO2      float64
	Leader   sim.Leader
}

// Edge is a fake edge.
type Edge struct {
	Lanes        int
	VehicleCount int
	MeanSpeed    float64
}

// Lane is a fake lane.
type Lane struct {
	Edge     string
	Length   float64
	Vehicles []string
}

// Light is a fake traffic light.
type Light struct {
	Phase  int
	Links  [][]sim.Link
	Logics []sim.Logic
}

// PhaseCall records a SetTrafficLightPhase invocation.
type PhaseCall struct {
	Time  float64
	Light string
	Index int
}

// Fake implements sim.Simulation over maps.
type Fake struct {
	mu sync.Mutex

	Vehicles map[string]*Vehicle
	Edges    map[string]*Edge
	Lanes    map[string]*Lane
	Lights   map[string]*Light

	Now      float64
	Expected int
	StepErr  error
	// OnStep runs after the clock advanced, with the lock released.
	OnStep func(f *Fake)

	PhaseCalls  []PhaseCall
	TypeChanges []string
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Vehicles: make(map[string]*Vehicle),
		Edges:    make(map[string]*Edge),
		Lanes:    make(map[string]*Lane),
		Lights:   make(map[string]*Light),
		Expected: 1,
	}
}

// AddEdge creates an edge with lanes named <id>_<i>.
func (f *Fake) AddEdge(id string, lanes int, laneLength float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edges[id] = &Edge{Lanes: lanes}
	for i := 0; i < lanes; i++ {
		f.Lanes[fmt.Sprintf("%s_%d", id, i)] = &Lane{Edge: id, Length: laneLength}
	}
}

// AddVehicle places a vehicle and registers it on its lane.
func (f *Fake) AddVehicle(v Vehicle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := v
	f.Vehicles[v.ID] = &cp
	if l, ok := f.Lanes[v.Lane]; ok {
		l.Vehicles = append(l.Vehicles, v.ID)
	}
}

// RemoveVehicle drops a vehicle from the network.
func (f *Fake) RemoveVehicle(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Vehicles[id]
	if !ok {
		return
	}
	delete(f.Vehicles, id)
	if l, ok := f.Lanes[v.Lane]; ok {
		for i, vid := range l.Vehicles {
			if vid == id {
				l.Vehicles = append(l.Vehicles[:i], l.Vehicles[i+1:]...)
				break
			}
		}
	}
}

// AddLight registers a traffic light with a single program of the given
// phase durations.
func (f *Fake) AddLight(id string, links [][]sim.Link, durations ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logic := sim.Logic{ProgramID: "0"}
	for _, d := range durations {
		logic.Phases = append(logic.Phases, sim.Phase{Duration: d, MinDur: d, MaxDur: d})
	}
	f.Lights[id] = &Light{Links: links, Logics: []sim.Logic{logic}}
}

// Vehicle returns a copy of the vehicle state.
func (f *Fake) Vehicle(id string) (Vehicle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Vehicles[id]
	if !ok {
		return Vehicle{}, false
	}
	return *v, true
}

func (f *Fake) vehicle(id string) (*Vehicle, error) {
	v, ok := f.Vehicles[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %q is not known", id)
	}
	return v, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *Fake) VehicleIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.Vehicles), nil
}

func (f *Fake) vehicleField(id string, get func(*Vehicle) float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return 0, err
	}
	return get(v), nil
}

func (f *Fake) VehicleSpeed(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.Speed })
}

func (f *Fake) VehicleLanePosition(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.LanePos })
}

func (f *Fake) VehicleAcceleration(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.Accel })
}

func (f *Fake) VehicleDistance(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.Distance })
}

func (f *Fake) VehicleFuelConsumption(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.Fuel })
}

func (f *Fake) VehicleCO2Emission(id string) (float64, error) {
	return f.vehicleField(id, func(v *Vehicle) float64 { return v.CO2 })
}

func (f *Fake) VehiclePosition(id string) (sim.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return sim.Position{}, err
	}
	return v.Pos, nil
}

func (f *Fake) VehicleTypeID(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return "", err
	}
	return v.Type, nil
}

func (f *Fake) VehicleRoadID(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return "", err
	}
	return v.Road, nil
}

func (f *Fake) VehicleLaneID(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return "", err
	}
	return v.Lane, nil
}

func (f *Fake) VehicleLeader(id string, dist float64) (sim.Leader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return sim.Leader{}, err
	}
	if v.Leader.ID == "" || v.Leader.Distance > dist {
		return sim.Leader{Distance: -1}, nil
	}
	return v.Leader, nil
}

func (f *Fake) SetVehicleType(id, typeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vehicle(id)
	if err != nil {
		return err
	}
	v.Type = typeID
	f.TypeChanges = append(f.TypeChanges, id+"="+typeID)
	return nil
}

func (f *Fake) EdgeIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.Edges), nil
}

func (f *Fake) edge(id string) (*Edge, error) {
	e, ok := f.Edges[id]
	if !ok {
		return nil, fmt.Errorf("edge %q is not known", id)
	}
	return e, nil
}

func (f *Fake) EdgeLaneCount(id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.edge(id)
	if err != nil {
		return 0, err
	}
	return e.Lanes, nil
}

func (f *Fake) EdgeVehicleCount(id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.edge(id)
	if err != nil {
		return 0, err
	}
	return e.VehicleCount, nil
}

func (f *Fake) EdgeMeanSpeed(id string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.edge(id)
	if err != nil {
		return 0, err
	}
	return e.MeanSpeed, nil
}

func (f *Fake) LaneIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.Lanes), nil
}

func (f *Fake) lane(id string) (*Lane, error) {
	l, ok := f.Lanes[id]
	if !ok {
		return nil, fmt.Errorf("lane %q is not known", id)
	}
	return l, nil
}

func (f *Fake) LaneLength(id string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lane(id)
	if err != nil {
		return 0, err
	}
	return l.Length, nil
}

func (f *Fake) LaneEdgeID(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lane(id)
	if err != nil {
		return "", err
	}
	return l.Edge, nil
}

func (f *Fake) LaneVehicleIDs(id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lane(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), l.Vehicles...), nil
}

func (f *Fake) TrafficLightIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.Lights), nil
}

func (f *Fake) light(id string) (*Light, error) {
	l, ok := f.Lights[id]
	if !ok {
		return nil, fmt.Errorf("traffic light %q is not known", id)
	}
	return l, nil
}

func (f *Fake) TrafficLightPhase(id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.light(id)
	if err != nil {
		return 0, err
	}
	return l.Phase, nil
}

func (f *Fake) SetTrafficLightPhase(id string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.light(id)
	if err != nil {
		return err
	}
	l.Phase = index
	f.PhaseCalls = append(f.PhaseCalls, PhaseCall{Time: f.Now, Light: id, Index: index})
	return nil
}

func (f *Fake) TrafficLightLinks(id string) ([][]sim.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.light(id)
	if err != nil {
		return nil, err
	}
	return l.Links, nil
}

func (f *Fake) TrafficLightLogics(id string) ([]sim.Logic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.light(id)
	if err != nil {
		return nil, err
	}
	return l.Logics, nil
}

func (f *Fake) Step(float64) error {
	f.mu.Lock()
	if f.StepErr != nil {
		err := f.StepErr
		f.mu.Unlock()
		return err
	}
	f.Now++
	hook := f.OnStep
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) Time() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Now, nil
}

func (f *Fake) MinExpectedVehicles() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Expected, nil
}

var _ sim.Simulation = (*Fake)(nil)
