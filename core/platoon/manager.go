package platoon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/sim"
)

// Vehicles is the part of the simulation the manager drives.
type Vehicles interface {
	VehicleIDs() ([]string, error)
	VehicleTypeID(id string) (string, error)
	VehicleLaneID(id string) (string, error)
	VehicleLeader(id string, dist float64) (sim.Leader, error)
	SetVehicleType(id, typeID string) error
}

// Membership answers platoon questions about a vehicle.
type Membership interface {
	// PlatoonID returns "" when the vehicle is not part of a platoon with
	// at least two members.
	PlatoonID(vehicleID string) string
	Role(vehicleID string) model.PlatoonRole
}

type member struct {
	original string
	applied  string
	pred     string
	gap      float64
	gapSince float64
	platoon  string
	role     model.PlatoonRole
}

// Manager forms and splits platoons among selected vehicles and switches
// their vehicle types according to the configured vType map.
type Manager struct {
	cfg     Config
	sim     Vehicles
	log     logger.Logger
	members map[string]*member
	ignored map[string]struct{}
	nextID  int
}

// NewManager returns a manager for the configuration.
func NewManager(cfg Config, s Vehicles, log logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		sim:     s,
		log:     log,
		members: make(map[string]*member),
		ignored: make(map[string]struct{}),
	}
}

// Update refreshes platoon membership for the simulation time now.
func (m *Manager) Update(now float64) error {
	ids, err := m.sim.VehicleIDs()
	if err != nil {
		return fmt.Errorf("vehicle ids: %w", err)
	}
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}
	for id := range m.members {
		if _, ok := present[id]; !ok {
			delete(m.members, id)
		}
	}
	for id := range m.ignored {
		if _, ok := present[id]; !ok {
			delete(m.ignored, id)
		}
	}
	for _, id := range ids {
		if _, ok := m.members[id]; ok {
			continue
		}
		if _, ok := m.ignored[id]; ok {
			continue
		}
		vType, err := m.sim.VehicleTypeID(id)
		if err != nil {
			return fmt.Errorf("type of %s: %w", id, err)
		}
		if !m.cfg.selects(vType) {
			m.ignored[id] = struct{}{}
			continue
		}
		m.members[id] = &member{original: vType, applied: vType, gapSince: -1, role: model.RoleNone}
	}

	managed := m.sortedMembers()
	for _, id := range managed {
		if err := m.link(id, now); err != nil {
			return err
		}
	}
	m.resolveConflicts()
	m.assign(managed)
	return m.applyTypes(managed)
}

func (m *Manager) sortedMembers() []string {
	ids := make([]string, 0, len(m.members))
	for id := range m.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// link updates the predecessor of one vehicle.
func (m *Manager) link(id string, now float64) error {
	mb := m.members[id]
	lane, err := m.sim.VehicleLaneID(id)
	if err != nil {
		return fmt.Errorf("lane of %s: %w", id, err)
	}
	if !m.cfg.managedLane(lane) {
		mb.pred = ""
		mb.gapSince = -1
		return nil
	}
	leader, err := m.sim.VehicleLeader(id, m.cfg.MaxPlatoonGap)
	if err != nil {
		return fmt.Errorf("leader of %s: %w", id, err)
	}
	if _, ok := m.members[leader.ID]; ok && leader.Distance >= 0 && leader.Distance <= m.cfg.MaxPlatoonGap {
		mb.pred = leader.ID
		mb.gap = leader.Distance
		mb.gapSince = -1
		return nil
	}
	if mb.pred == "" {
		return nil
	}
	if _, ok := m.members[mb.pred]; !ok {
		mb.pred = ""
		mb.gapSince = -1
		return nil
	}
	if mb.gapSince < 0 {
		mb.gapSince = now
	}
	if now-mb.gapSince >= m.cfg.PlatoonSplitTime {
		m.log.Debugf("vehicle %s split from %s after %.1fs", id, mb.pred, now-mb.gapSince)
		mb.pred = ""
		mb.gapSince = -1
	}
	return nil
}

// resolveConflicts keeps a single follower per predecessor.
func (m *Manager) resolveConflicts() {
	claimed := make(map[string]string)
	for _, id := range m.sortedMembers() {
		mb := m.members[id]
		if mb.pred == "" {
			continue
		}
		if other, ok := claimed[mb.pred]; ok {
			// the closer vehicle stays attached
			if m.members[other].gap <= mb.gap {
				mb.pred = ""
				mb.gapSince = -1
				continue
			}
			m.members[other].pred = ""
			m.members[other].gapSince = -1
		}
		claimed[mb.pred] = id
	}
}

// assign derives platoons from predecessor chains.
func (m *Manager) assign(ids []string) {
	follower := make(map[string]string)
	prevLeaderOf := make(map[string]string)
	for _, id := range ids {
		mb := m.members[id]
		if mb.role == model.RoleLeader {
			prevLeaderOf[id] = mb.platoon
		}
		mb.platoon = ""
		mb.role = model.RoleNone
		if mb.pred != "" {
			follower[mb.pred] = id
		}
	}
	for _, id := range ids {
		mb := m.members[id]
		if mb.pred != "" {
			continue
		}
		chain := []string{id}
		seen := map[string]bool{id: true}
		for cur := id; ; {
			next, ok := follower[cur]
			if !ok || seen[next] {
				break
			}
			seen[next] = true
			chain = append(chain, next)
			cur = next
		}
		if len(chain) == 1 {
			continue
		}
		pid := prevLeaderOf[id]
		if pid == "" {
			pid = m.newPlatoonID()
		}
		for i, vid := range chain {
			v := m.members[vid]
			v.platoon = pid
			if i == 0 {
				v.role = model.RoleLeader
			} else {
				v.role = model.RoleFollower
			}
		}
	}
}

func (m *Manager) newPlatoonID() string {
	id := fmt.Sprintf("platoon_%d", m.nextID)
	m.nextID++
	return id
}

func (m *Manager) applyTypes(ids []string) error {
	for _, id := range ids {
		mb := m.members[id]
		mp, ok := m.cfg.mapping(mb.original)
		if !ok {
			continue
		}
		want := mb.original
		switch mb.role {
		case model.RoleLeader:
			want = mp.Leader
		case model.RoleFollower:
			want = mp.Follower
		}
		if want == mb.applied {
			continue
		}
		if err := m.sim.SetVehicleType(id, want); err != nil {
			return fmt.Errorf("set type of %s: %w", id, err)
		}
		mb.applied = want
	}
	return nil
}

// PlatoonID implements Membership.
func (m *Manager) PlatoonID(vehicleID string) string {
	if mb, ok := m.members[vehicleID]; ok {
		return mb.platoon
	}
	return ""
}

// Role implements Membership.
func (m *Manager) Role(vehicleID string) model.PlatoonRole {
	if mb, ok := m.members[vehicleID]; ok {
		return mb.role
	}
	return model.RoleNone
}

// Managed reports whether the vehicle is selected for platooning.
func (m *Manager) Managed(vehicleID string) bool {
	_, ok := m.members[vehicleID]
	return ok
}

// Platoons returns the current platoons ordered by id, members front to back.
func (m *Manager) Platoons() []model.Platoon {
	byID := make(map[string]*model.Platoon)
	follower := make(map[string]string)
	for id, mb := range m.members {
		if mb.platoon == "" {
			continue
		}
		if mb.pred != "" {
			follower[mb.pred] = id
		}
		if mb.role == model.RoleLeader {
			byID[mb.platoon] = &model.Platoon{ID: mb.platoon, LeaderID: id}
		}
	}
	res := make([]model.Platoon, 0, len(byID))
	for _, p := range byID {
		seen := map[string]bool{}
		for cur := p.LeaderID; cur != "" && !seen[cur]; cur = follower[cur] {
			seen[cur] = true
			p.VehicleIDs = append(p.VehicleIDs, cur)
		}
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// TypeMembership classifies vehicles by vehicle type name only. It is used
// when no platoon configuration is available.
type TypeMembership struct {
	Vehicles interface {
		VehicleTypeID(id string) (string, error)
	}
}

// PlatoonID implements Membership.
func (t TypeMembership) PlatoonID(vehicleID string) string {
	if t.Vehicles == nil {
		return ""
	}
	vType, err := t.Vehicles.VehicleTypeID(vehicleID)
	if err != nil || !strings.Contains(strings.ToLower(vType), "platoon") {
		return ""
	}
	return "manual_platoon"
}

// Role implements Membership.
func (t TypeMembership) Role(vehicleID string) model.PlatoonRole {
	if t.Vehicles == nil {
		return model.RoleNone
	}
	vType, err := t.Vehicles.VehicleTypeID(vehicleID)
	if err != nil {
		return model.RoleNone
	}
	switch lt := strings.ToLower(vType); {
	case strings.Contains(lt, "leader"):
		return model.RoleLeader
	case strings.Contains(lt, "follower"):
		return model.RoleFollower
	default:
		return model.RoleNone
	}
}

var (
	_ Membership = (*Manager)(nil)
	_ Membership = TypeMembership{}
)
