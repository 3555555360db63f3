package model

// PlatoonRole is the position a managed vehicle holds in its platoon.
type PlatoonRole string

const (
	RoleNone     PlatoonRole = "none"
	RoleLeader   PlatoonRole = "leader"
	RoleFollower PlatoonRole = "follower"
)

// VehicleSample is a per-step snapshot of one vehicle.
type VehicleSample struct {
	Step            int
	VehicleID       string
	IsPlatoon       bool
	Role            PlatoonRole
	PlatoonID       string
	X               float64
	Y               float64
	Speed           float64 // m/s
	Acceleration    float64 // m/s^2
	RoadID          string
	LaneID          string
	Distance        float64 // odometer in m
	FuelConsumption float64 // mg/s as reported by SUMO
	CO2Emission     float64 // mg/s
	LeaderID        string
	LeaderDistance  float64 // -1 when there is no leader
}

// Platoon groups the vehicles currently driving together.
type Platoon struct {
	ID         string
	LeaderID   string
	VehicleIDs []string
}

// Size returns the number of members.
func (p Platoon) Size() int { return len(p.VehicleIDs) }
