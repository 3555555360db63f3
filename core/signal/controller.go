// Package signal extends main-road green phases while a platoon is about
// to cross the intersection.
package signal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/sim"
)

// Config selects the lights under platoon-aware control.
type Config struct {
	// MainRoadGreenPhases lists, per traffic light, the phase indices that
	// give green to the corridor.
	MainRoadGreenPhases map[string][]int `json:"main_road_green_phases"`
	DetectionDistance   float64          `json:"detection_distance"`
	MappingFile         string           `json:"mapping_file"`
	MappingOptional     bool             `json:"mapping_optional"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.DetectionDistance == 0 {
		c.DetectionDistance = 150
	}
	if c.MappingFile == "" {
		c.MappingFile = "traffic_signal_mapping.json"
	}
}

// Validate checks the signal settings.
func (c Config) Validate() error {
	if c.DetectionDistance <= 0 {
		return errors.New("detection_distance must be positive")
	}
	for tl, phases := range c.MainRoadGreenPhases {
		for _, p := range phases {
			if p < 0 {
				return fmt.Errorf("negative green phase %d for %s", p, tl)
			}
		}
	}
	return nil
}

// Membership reports platoon membership. An empty id means none.
type Membership interface {
	PlatoonID(vehicleID string) string
}

// Sim is the simulation surface the controller reads and drives.
type Sim interface {
	VehicleTypeID(id string) (string, error)
	VehicleLanePosition(id string) (float64, error)
	LaneLength(id string) (float64, error)
	LaneEdgeID(id string) (string, error)
	LaneVehicleIDs(id string) ([]string, error)
	sim.TrafficLights
}

type light struct {
	id        string
	durations []float64
	green     map[int]bool
	links     []sim.Link
	phase     int
	timer     float64
	duration  float64
}

// Controller runs the fixed-time programs of the configured lights and
// holds a main-road green while a platoon truck is within detection
// distance of the stop line.
type Controller struct {
	cfg        Config
	corridor   model.Corridor
	mapping    Mapping
	membership Membership
	sim        Sim
	log        logger.Logger

	lights     []*light
	laneLength map[string]float64
	extended   int
}

// NewController returns a controller. mapping may be nil.
func NewController(cfg Config, corridor model.Corridor, mapping Mapping, membership Membership, s Sim, log logger.Logger) *Controller {
	cfg.SetDefaults()
	return &Controller{
		cfg:        cfg,
		corridor:   corridor,
		mapping:    mapping,
		membership: membership,
		sim:        s,
		log:        log,
		laneLength: make(map[string]float64),
	}
}

// Init loads the program of every configured light present in the network.
func (c *Controller) Init() error {
	ids, err := c.sim.TrafficLightIDs()
	if err != nil {
		return fmt.Errorf("list traffic lights: %w", err)
	}
	c.lights = c.lights[:0]
	for _, id := range ids {
		phases, ok := c.cfg.MainRoadGreenPhases[id]
		if !ok {
			continue
		}
		logics, err := c.sim.TrafficLightLogics(id)
		if err != nil {
			return fmt.Errorf("program of %s: %w", id, err)
		}
		if len(logics) == 0 || len(logics[0].Phases) == 0 {
			c.log.Warnf("traffic light %s has no program, not controlled", id)
			continue
		}
		l := &light{id: id, green: make(map[int]bool, len(phases))}
		for _, p := range logics[0].Phases {
			l.durations = append(l.durations, p.Duration)
		}
		for _, p := range phases {
			l.green[p] = true
		}
		links, err := c.sim.TrafficLightLinks(id)
		if err != nil {
			return fmt.Errorf("links of %s: %w", id, err)
		}
		l.links = flatten(links)
		if l.phase, err = c.sim.TrafficLightPhase(id); err != nil {
			return fmt.Errorf("phase of %s: %w", id, err)
		}
		if l.phase < 0 || l.phase >= len(l.durations) {
			c.log.Warnf("initial phase %d of %s out of range, resetting to 0", l.phase, id)
			l.phase = 0
		}
		l.duration = l.durations[l.phase]
		c.lights = append(c.lights, l)
	}
	sort.Slice(c.lights, func(i, j int) bool { return c.lights[i].id < c.lights[j].id })
	for id := range c.cfg.MainRoadGreenPhases {
		if !c.controls(id) {
			c.log.Debugf("configured traffic light %s not controlled", id)
		}
	}
	return nil
}

func (c *Controller) controls(id string) bool {
	for _, l := range c.lights {
		if l.id == id {
			return true
		}
	}
	return false
}

// Controlled returns the ids of the lights under control.
func (c *Controller) Controlled() []string {
	out := make([]string, len(c.lights))
	for i, l := range c.lights {
		out[i] = l.id
	}
	return out
}

// Extensions returns how many steps a green was held past its duration.
func (c *Controller) Extensions() int { return c.extended }

// Step advances every phase timer by one second and switches phases that
// ran out, unless the green is held for an approaching platoon.
func (c *Controller) Step() error {
	for _, l := range c.lights {
		l.timer++
		approaching, err := c.platoonApproaching(l)
		if err != nil {
			return fmt.Errorf("detect platoon at %s: %w", l.id, err)
		}
		if l.timer < l.duration {
			continue
		}
		if l.green[l.phase] && approaching {
			c.extended++
			continue
		}
		l.phase = (l.phase + 1) % len(l.durations)
		if err := c.sim.SetTrafficLightPhase(l.id, l.phase); err != nil {
			return fmt.Errorf("set phase of %s: %w", l.id, err)
		}
		l.timer = 0
		l.duration = l.durations[l.phase]
	}
	return nil
}

func (c *Controller) edgeOf(l *light, idx int, lane string) (string, error) {
	if edge, ok := c.mapping.Edge(l.id, idx); ok {
		return edge, nil
	}
	return c.sim.LaneEdgeID(lane)
}

func (c *Controller) platoonApproaching(l *light) (bool, error) {
	for idx, link := range l.links {
		if link.From == "" {
			continue
		}
		edge, err := c.edgeOf(l, idx, link.From)
		if err != nil {
			c.log.Debugf("edge of lane %s: %v", link.From, err)
			continue
		}
		if !c.corridor.Contains(edge) {
			continue
		}
		found, err := c.truckNearStopLine(link.From)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) truckNearStopLine(lane string) (bool, error) {
	vehicles, err := c.sim.LaneVehicleIDs(lane)
	if err != nil {
		return false, err
	}
	for _, v := range vehicles {
		typ, err := c.sim.VehicleTypeID(v)
		if err != nil {
			return false, err
		}
		if !strings.Contains(strings.ToLower(typ), "truck") || c.membership.PlatoonID(v) == "" {
			continue
		}
		length, err := c.length(lane)
		if err != nil {
			return false, err
		}
		pos, err := c.sim.VehicleLanePosition(v)
		if err != nil {
			return false, err
		}
		if length-pos <= c.cfg.DetectionDistance {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) length(lane string) (float64, error) {
	if l, ok := c.laneLength[lane]; ok {
		return l, nil
	}
	l, err := c.sim.LaneLength(lane)
	if err != nil {
		return 0, err
	}
	c.laneLength[lane] = l
	return l, nil
}
