package traci

import (
	"fmt"

	"github.com/kilianp07/platoonsim/core/sim"
)

func (c *Client) VehicleIDs() ([]string, error) {
	return c.getStringList(cmdGetVehicleVariable, varIDList, "")
}

func (c *Client) VehicleSpeed(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varSpeed, id)
}

func (c *Client) VehiclePosition(id string) (sim.Position, error) {
	r, err := c.get(cmdGetVehicleVariable, varPosition, id, nil)
	if err != nil {
		return sim.Position{}, err
	}
	if err := r.expect(typePosition2D); err != nil {
		return sim.Position{}, err
	}
	x, err := r.double()
	if err != nil {
		return sim.Position{}, err
	}
	y, err := r.double()
	return sim.Position{X: x, Y: y}, err
}

func (c *Client) VehicleLanePosition(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varLanePosition, id)
}

func (c *Client) VehicleTypeID(id string) (string, error) {
	return c.getString(cmdGetVehicleVariable, varType, id)
}

func (c *Client) VehicleRoadID(id string) (string, error) {
	return c.getString(cmdGetVehicleVariable, varRoadID, id)
}

func (c *Client) VehicleLaneID(id string) (string, error) {
	return c.getString(cmdGetVehicleVariable, varLaneID, id)
}

func (c *Client) VehicleAcceleration(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varAcceleration, id)
}

// VehicleDistance returns the odometer distance driven so far.
func (c *Client) VehicleDistance(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varDistance, id)
}

// VehicleFuelConsumption returns the fuel used in the last step in mg/s.
func (c *Client) VehicleFuelConsumption(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varFuel, id)
}

func (c *Client) VehicleCO2Emission(id string) (float64, error) {
	return c.getDouble(cmdGetVehicleVariable, varCO2Emission, id)
}

// VehicleLeader returns the closest vehicle ahead within dist meters. The
// ID is empty and the distance -1 when there is none.
func (c *Client) VehicleLeader(id string, dist float64) (sim.Leader, error) {
	it, err := c.getCompound(cmdGetVehicleVariable, varLeader, id, func(w *writer) { w.typedDouble(dist) })
	if err != nil {
		return sim.Leader{}, err
	}
	leader, err := it.str()
	if err != nil {
		return sim.Leader{}, err
	}
	d, err := it.double()
	if err != nil {
		return sim.Leader{}, err
	}
	if leader == "" {
		d = -1
	}
	return sim.Leader{ID: leader, Distance: d}, nil
}

// VehicleParameter reads a generic vehicle parameter.
func (c *Client) VehicleParameter(id, key string) (string, error) {
	r, err := c.get(cmdGetVehicleVariable, varParameter, id, func(w *writer) { w.typedString(key) })
	if err != nil {
		return "", err
	}
	if err := r.expect(typeString); err != nil {
		return "", err
	}
	return r.str()
}

func (c *Client) SetVehicleType(id, typeID string) error {
	return c.set(cmdSetVehicleVariable, varType, id, func(w *writer) { w.typedString(typeID) })
}

func (c *Client) EdgeIDs() ([]string, error) {
	return c.getStringList(cmdGetEdgeVariable, varIDList, "")
}

func (c *Client) EdgeLaneCount(id string) (int, error) {
	return c.getInt(cmdGetEdgeVariable, varLaneIndex, id)
}

func (c *Client) EdgeVehicleCount(id string) (int, error) {
	return c.getInt(cmdGetEdgeVariable, varLastStepVehicleNumber, id)
}

func (c *Client) EdgeMeanSpeed(id string) (float64, error) {
	return c.getDouble(cmdGetEdgeVariable, varLastStepMeanSpeed, id)
}

func (c *Client) LaneIDs() ([]string, error) {
	return c.getStringList(cmdGetLaneVariable, varIDList, "")
}

func (c *Client) LaneLength(id string) (float64, error) {
	return c.getDouble(cmdGetLaneVariable, varLength, id)
}

func (c *Client) LaneEdgeID(id string) (string, error) {
	return c.getString(cmdGetLaneVariable, varLaneEdgeID, id)
}

func (c *Client) LaneVehicleIDs(id string) ([]string, error) {
	return c.getStringList(cmdGetLaneVariable, varLastStepVehicleIDs, id)
}

func (c *Client) TrafficLightIDs() ([]string, error) {
	return c.getStringList(cmdGetTLVariable, varIDList, "")
}

func (c *Client) TrafficLightPhase(id string) (int, error) {
	return c.getInt(cmdGetTLVariable, varTLCurrentPhase, id)
}

func (c *Client) SetTrafficLightPhase(id string, index int) error {
	return c.set(cmdSetTLVariable, varTLPhaseIndex, id, func(w *writer) { w.typedInt(index) })
}

// TrafficLightLinks returns the links controlled by each signal index. The
// response is a flat compound: signal count, then per signal its link count
// followed by one [from, to, via] string list per link.
func (c *Client) TrafficLightLinks(id string) ([][]sim.Link, error) {
	it, err := c.getCompound(cmdGetTLVariable, varTLControlledLinks, id, nil)
	if err != nil {
		return nil, err
	}
	signals, err := it.int()
	if err != nil {
		return nil, err
	}
	out := make([][]sim.Link, 0, signals)
	for s := 0; s < signals; s++ {
		n, err := it.int()
		if err != nil {
			return nil, err
		}
		links := make([]sim.Link, 0, n)
		for l := 0; l < n; l++ {
			parts, err := it.strList()
			if err != nil {
				return nil, err
			}
			if len(parts) != 3 {
				return nil, fmt.Errorf("traci: link of %s has %d lanes, want 3", id, len(parts))
			}
			links = append(links, sim.Link{From: parts[0], To: parts[1], Via: parts[2]})
		}
		out = append(out, links)
	}
	return out, nil
}

// TrafficLightLogics returns every program of the light with red/yellow/
// green phase states.
func (c *Client) TrafficLightLogics(id string) ([]sim.Logic, error) {
	it, err := c.getCompound(cmdGetTLVariable, varTLCompleteDefinition, id, nil)
	if err != nil {
		return nil, err
	}
	logics := make([]sim.Logic, 0, len(it.v))
	for range it.v {
		lc, err := it.compound()
		if err != nil {
			return nil, err
		}
		logic, err := decodeLogic(lc)
		if err != nil {
			return nil, fmt.Errorf("traci: logic of %s: %w", id, err)
		}
		logics = append(logics, logic)
	}
	return logics, nil
}

func decodeLogic(it *items) (sim.Logic, error) {
	var (
		l   sim.Logic
		err error
	)
	if l.ProgramID, err = it.str(); err != nil {
		return l, err
	}
	if l.Type, err = it.int(); err != nil {
		return l, err
	}
	if l.CurrentPhase, err = it.int(); err != nil {
		return l, err
	}
	phases, err := it.compound()
	if err != nil {
		return l, err
	}
	for range phases.v {
		pc, err := phases.compound()
		if err != nil {
			return l, err
		}
		p, err := decodePhase(pc)
		if err != nil {
			return l, err
		}
		l.Phases = append(l.Phases, p)
	}
	params, err := it.compound()
	if err != nil {
		return l, err
	}
	for range params.v {
		kv, err := params.strList()
		if err != nil {
			return l, err
		}
		if len(kv) != 2 {
			continue
		}
		if l.Params == nil {
			l.Params = make(map[string]string)
		}
		l.Params[kv[0]] = kv[1]
	}
	return l, nil
}

func decodePhase(it *items) (sim.Phase, error) {
	var (
		p   sim.Phase
		err error
	)
	if p.Duration, err = it.double(); err != nil {
		return p, err
	}
	if p.State, err = it.str(); err != nil {
		return p, err
	}
	if p.MinDur, err = it.double(); err != nil {
		return p, err
	}
	if p.MaxDur, err = it.double(); err != nil {
		return p, err
	}
	next, err := it.compound()
	if err != nil {
		return p, err
	}
	for range next.v {
		n, err := next.int()
		if err != nil {
			return p, err
		}
		p.Next = append(p.Next, n)
	}
	if p.Name, err = it.str(); err != nil {
		return p, err
	}
	return p, nil
}
