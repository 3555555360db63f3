// Package collect samples corridor, network, vehicle and platoon metrics
// from a running simulation.
package collect

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/sim"
)

// Config selects the optional per-vehicle and per-platoon rows.
type Config struct {
	VehicleData bool `json:"vehicle_data"`
	// SkipPlatoonData disables platoon_data rows.
	SkipPlatoonData bool `json:"skip_platoon_data"`
	// LeaderLookahead bounds the leader query in meters.
	LeaderLookahead float64 `json:"leader_lookahead"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.LeaderLookahead == 0 {
		c.LeaderLookahead = 100
	}
}

// Validate checks the collection settings.
func (c Config) Validate() error {
	if c.LeaderLookahead < 0 {
		return errors.New("leader_lookahead must not be negative")
	}
	return nil
}

// Membership reports platoon membership of a vehicle.
type Membership interface {
	PlatoonID(vehicleID string) string
	Role(vehicleID string) model.PlatoonRole
}

// Source is the simulation surface the collector reads.
type Source interface {
	sim.Vehicles
	sim.Network
}

// Collector accumulates the samples of one run in memory.
type Collector struct {
	cfg        Config
	corridor   model.Corridor
	src        Source
	membership Membership
	log        logger.Logger

	northbound []string
	southbound []string
	northLanes []string
	roadLength float64

	Steps    []model.StepMetrics
	Global   []model.GlobalSample
	Vehicles []model.VehicleSample
	Platoons []model.PlatoonSample
	Fuel     model.FuelStats
}

// New returns a collector.
func New(cfg Config, corridor model.Corridor, src Source, membership Membership, log logger.Logger) *Collector {
	cfg.SetDefaults()
	return &Collector{cfg: cfg, corridor: corridor, src: src, membership: membership, log: log}
}

// Init resolves the corridor edges present in the network and the total
// road length.
func (c *Collector) Init() error {
	edges, err := c.src.EdgeIDs()
	if err != nil {
		return fmt.Errorf("list edges: %w", err)
	}
	lanes, err := c.src.LaneIDs()
	if err != nil {
		return fmt.Errorf("list lanes: %w", err)
	}
	edgeSet := make(map[string]bool, len(edges))
	for _, e := range edges {
		edgeSet[e] = true
	}
	laneSet := make(map[string]bool, len(lanes))
	for _, l := range lanes {
		laneSet[l] = true
	}

	c.northbound = present(c.corridor.Northbound, edgeSet)
	c.southbound = present(c.corridor.Southbound, edgeSet)
	if missing := len(c.corridor.Northbound) + len(c.corridor.Southbound) - len(c.northbound) - len(c.southbound); missing > 0 {
		c.log.Warnf("%d corridor edges are not in the network", missing)
	}
	c.northLanes = c.northLanes[:0]
	for _, e := range c.northbound {
		n, err := c.src.EdgeLaneCount(e)
		if err != nil {
			return fmt.Errorf("lanes of %s: %w", e, err)
		}
		for i := 0; i < n; i++ {
			if id := fmt.Sprintf("%s_%d", e, i); laneSet[id] {
				c.northLanes = append(c.northLanes, id)
			}
		}
	}

	c.roadLength = 0
	for _, e := range edges {
		if strings.HasPrefix(e, ":") {
			continue
		}
		lane := e + "_0"
		if !laneSet[lane] {
			continue
		}
		l, err := c.src.LaneLength(lane)
		if err != nil {
			return fmt.Errorf("length of %s: %w", lane, err)
		}
		c.roadLength += l
	}
	return nil
}

func present(ids []string, set map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

// RoadLength returns the summed length of non-internal edges in meters.
func (c *Collector) RoadLength() float64 { return c.roadLength }

// Collect samples the simulation after step (1-based) was simulated.
func (c *Collector) Collect(step int) error {
	ids, err := c.src.VehicleIDs()
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}
	sm, err := c.corridorMetrics(step, ids)
	if err != nil {
		return err
	}
	c.Steps = append(c.Steps, sm)

	timeStep := step - 1
	c.Global = append(c.Global, c.global(timeStep, len(ids)))

	for _, id := range ids {
		fuel, err := c.src.VehicleFuelConsumption(id)
		if err != nil {
			return fmt.Errorf("fuel of %s: %w", id, err)
		}
		inPlatoon := c.membership.PlatoonID(id) != ""
		c.Fuel.Add(inPlatoon, fuel)
		if c.cfg.VehicleData {
			vs, err := c.vehicle(timeStep, id, inPlatoon, fuel)
			if err != nil {
				return err
			}
			c.Vehicles = append(c.Vehicles, vs)
		}
	}
	if !c.cfg.SkipPlatoonData {
		ps, err := c.platoons(timeStep, ids)
		if err != nil {
			return err
		}
		c.Platoons = append(c.Platoons, ps...)
	}
	return nil
}

func (c *Collector) global(timeStep, n int) model.GlobalSample {
	g := model.GlobalSample{Step: timeStep, NumVehicles: n}
	if c.roadLength > 0 {
		g.Density = float64(n) / (c.roadLength / 1000)
	}
	g.Flow = float64(n) * 3600 / float64(timeStep+1)
	return g
}

func (c *Collector) vehicle(timeStep int, id string, inPlatoon bool, fuel float64) (model.VehicleSample, error) {
	vs := model.VehicleSample{
		Step:            timeStep,
		VehicleID:       id,
		IsPlatoon:       inPlatoon,
		Role:            c.membership.Role(id),
		PlatoonID:       c.membership.PlatoonID(id),
		FuelConsumption: fuel,
	}
	var err error
	wrap := func(what string, e error) error { return fmt.Errorf("%s of %s: %w", what, id, e) }
	pos, err := c.src.VehiclePosition(id)
	if err != nil {
		return vs, wrap("position", err)
	}
	vs.X, vs.Y = pos.X, pos.Y
	if vs.Speed, err = c.src.VehicleSpeed(id); err != nil {
		return vs, wrap("speed", err)
	}
	if vs.Acceleration, err = c.src.VehicleAcceleration(id); err != nil {
		return vs, wrap("acceleration", err)
	}
	if vs.RoadID, err = c.src.VehicleRoadID(id); err != nil {
		return vs, wrap("road", err)
	}
	if vs.LaneID, err = c.src.VehicleLaneID(id); err != nil {
		return vs, wrap("lane", err)
	}
	if vs.Distance, err = c.src.VehicleDistance(id); err != nil {
		return vs, wrap("distance", err)
	}
	if vs.CO2Emission, err = c.src.VehicleCO2Emission(id); err != nil {
		return vs, wrap("co2", err)
	}
	leader, err := c.src.VehicleLeader(id, c.cfg.LeaderLookahead)
	if err != nil {
		return vs, wrap("leader", err)
	}
	vs.LeaderID, vs.LeaderDistance = leader.ID, leader.Distance
	if leader.ID == "" {
		vs.LeaderDistance = -1
	}
	return vs, nil
}

// platoons groups vehicles by platoon id and reports the time headways
// between consecutive members.
func (c *Collector) platoons(timeStep int, ids []string) ([]model.PlatoonSample, error) {
	groups := make(map[string][]string)
	for _, id := range ids {
		if pid := c.membership.PlatoonID(id); pid != "" {
			groups[pid] = append(groups[pid], id)
		}
	}
	pids := make([]string, 0, len(groups))
	for pid, members := range groups {
		if len(members) > 1 {
			pids = append(pids, pid)
		}
	}
	sort.Strings(pids)

	out := make([]model.PlatoonSample, 0, len(pids))
	for _, pid := range pids {
		members := groups[pid]
		dist := make(map[string]float64, len(members))
		var fuel float64
		for _, id := range members {
			d, err := c.src.VehicleDistance(id)
			if err != nil {
				return nil, fmt.Errorf("distance of %s: %w", id, err)
			}
			dist[id] = d
			f, err := c.src.VehicleFuelConsumption(id)
			if err != nil {
				return nil, fmt.Errorf("fuel of %s: %w", id, err)
			}
			fuel += f
		}
		// front to back: the vehicle that drove furthest leads
		sort.SliceStable(members, func(i, j int) bool { return dist[members[i]] > dist[members[j]] })

		var headways []float64
		for i := 1; i < len(members); i++ {
			lead, follow := members[i-1], members[i]
			leader, err := c.src.VehicleLeader(follow, c.cfg.LeaderLookahead)
			if err != nil {
				return nil, fmt.Errorf("leader of %s: %w", follow, err)
			}
			if leader.ID != lead {
				continue
			}
			speed, err := c.src.VehicleSpeed(follow)
			if err != nil {
				return nil, fmt.Errorf("speed of %s: %w", follow, err)
			}
			if speed > 0 {
				headways = append(headways, leader.Distance/speed)
			}
		}
		ps := model.PlatoonSample{
			Step:      timeStep,
			PlatoonID: pid,
			Size:      len(members),
			AvgFuel:   fuel / float64(len(members)),
		}
		ps.AvgHeadway, ps.StdHeadway, ps.HeadwayConsistency = headwayStats(headways)
		out = append(out, ps)
	}
	return out, nil
}

// headwayStats returns the mean, population standard deviation and
// consistency of headways, all NaN when there are none.
func headwayStats(h []float64) (mean, std, consistency float64) {
	if len(h) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mean, std = stat.PopMeanStdDev(h, nil)
	return mean, std, 1 / (std + 0.001)
}
