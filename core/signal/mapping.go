package signal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kilianp07/platoonsim/core/sim"
)

// UnknownEdge marks a link whose incoming lane could not be resolved.
const UnknownEdge = "UNKNOWN"

// LaneInfo is the incoming lane of one signal link and its edge.
type LaneInfo struct {
	IncomingLane string `json:"incoming_lane"`
	EdgeID       string `json:"edge_id"`
}

// Mapping maps traffic light id to flat link index (as a string) to the
// incoming lane of that link.
type Mapping map[string]map[string]LaneInfo

// MappingSource is what BuildMapping queries.
type MappingSource interface {
	TrafficLightIDs() ([]string, error)
	TrafficLightLinks(id string) ([][]sim.Link, error)
	LaneEdgeID(id string) (string, error)
}

// BuildMapping records, for every traffic light, the incoming lane and edge
// of each controlled link in flat order.
func BuildMapping(s MappingSource) (Mapping, error) {
	ids, err := s.TrafficLightIDs()
	if err != nil {
		return nil, fmt.Errorf("list traffic lights: %w", err)
	}
	m := make(Mapping, len(ids))
	for _, tl := range ids {
		links, err := s.TrafficLightLinks(tl)
		if err != nil {
			return nil, fmt.Errorf("links of %s: %w", tl, err)
		}
		entry := make(map[string]LaneInfo)
		for i, l := range flatten(links) {
			edge, err := s.LaneEdgeID(l.From)
			if err != nil || edge == "" {
				edge = UnknownEdge
			}
			entry[strconv.Itoa(i)] = LaneInfo{IncomingLane: l.From, EdgeID: edge}
		}
		m[tl] = entry
	}
	return m, nil
}

// Edge returns the mapped edge of link index idx of light tl. Missing or
// empty entries report false. UnknownEdge is returned as is, so the link
// never counts as a corridor approach.
func (m Mapping) Edge(tl string, idx int) (string, bool) {
	info, ok := m[tl][strconv.Itoa(idx)]
	if !ok || info.EdgeID == "" {
		return "", false
	}
	return info.EdgeID, true
}

// Write encodes the mapping as indented JSON.
func (m Mapping) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(m)
}

// WriteMappingFile writes the mapping to path.
func WriteMappingFile(path string, m Mapping) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadMapping reads a mapping file.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func flatten(links [][]sim.Link) []sim.Link {
	var out []sim.Link
	for _, sub := range links {
		out = append(out, sub...)
	}
	return out
}
