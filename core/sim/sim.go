// Package sim defines the view of a running traffic simulation that the
// platoon manager, the signal controller and the metric collectors work
// against. infra/traci provides the TraCI implementation.
package sim

// Position is a network coordinate in meters.
type Position struct {
	X float64
	Y float64
}

// Leader is the vehicle ahead on the route. ID is empty when there is none.
type Leader struct {
	ID       string
	Distance float64
}

// Link is one connection controlled by a traffic light signal.
type Link struct {
	From string
	To   string
	Via  string
}

// Phase is one phase of a traffic light program, durations in seconds.
type Phase struct {
	Duration float64
	State    string
	MinDur   float64
	MaxDur   float64
	Next     []int
	Name     string
}

// Logic is a complete traffic light program.
type Logic struct {
	ProgramID    string
	Type         int
	CurrentPhase int
	Phases       []Phase
	Params       map[string]string
}

// Vehicles reads per-vehicle state.
type Vehicles interface {
	VehicleIDs() ([]string, error)
	VehicleSpeed(id string) (float64, error)
	VehiclePosition(id string) (Position, error)
	VehicleLanePosition(id string) (float64, error)
	VehicleTypeID(id string) (string, error)
	VehicleRoadID(id string) (string, error)
	VehicleLaneID(id string) (string, error)
	VehicleAcceleration(id string) (float64, error)
	VehicleDistance(id string) (float64, error)
	VehicleFuelConsumption(id string) (float64, error)
	VehicleCO2Emission(id string) (float64, error)
	VehicleLeader(id string, dist float64) (Leader, error)
	SetVehicleType(id, typeID string) error
}

// Network reads edge and lane state.
type Network interface {
	EdgeIDs() ([]string, error)
	EdgeLaneCount(id string) (int, error)
	EdgeVehicleCount(id string) (int, error)
	EdgeMeanSpeed(id string) (float64, error)
	LaneIDs() ([]string, error)
	LaneLength(id string) (float64, error)
	LaneEdgeID(id string) (string, error)
	LaneVehicleIDs(id string) ([]string, error)
}

// TrafficLights reads and drives signal programs.
type TrafficLights interface {
	TrafficLightIDs() ([]string, error)
	TrafficLightPhase(id string) (int, error)
	SetTrafficLightPhase(id string, index int) error
	TrafficLightLinks(id string) ([][]Link, error)
	TrafficLightLogics(id string) ([]Logic, error)
}

// Clock advances the simulation.
type Clock interface {
	Step(targetTime float64) error
	Time() (float64, error)
	MinExpectedVehicles() (int, error)
}

// Simulation is the full control surface used by a run.
type Simulation interface {
	Vehicles
	Network
	TrafficLights
	Clock
}
