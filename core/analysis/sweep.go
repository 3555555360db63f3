package analysis

import (
	"sort"

	"github.com/kilianp07/platoonsim/core/model"
)

// Point is one value of a sweep series.
type Point struct {
	PlatoonSize int
	Value       float64
}

// Series is a metric against platoon size for one traffic type and
// platoon count.
type Series struct {
	Traffic     model.TrafficType
	NumPlatoons int
	Points      []Point
}

// SweepSeries groups the summaries by traffic type and platoon count and
// returns key against platoon size, ordered by traffic then count.
func SweepSeries(summaries []model.Summary, key string) []Series {
	type group struct {
		traffic model.TrafficType
		np      int
	}
	byGroup := make(map[group][]Point)
	for _, s := range summaries {
		v, ok := s.Value(key)
		if !ok {
			continue
		}
		g := group{s.Scenario.Traffic, s.Scenario.NumPlatoons}
		byGroup[g] = append(byGroup[g], Point{PlatoonSize: s.Scenario.PlatoonSize, Value: v})
	}
	out := make([]Series, 0, len(byGroup))
	for g, pts := range byGroup {
		sort.Slice(pts, func(i, j int) bool { return pts[i].PlatoonSize < pts[j].PlatoonSize })
		out = append(out, Series{Traffic: g.traffic, NumPlatoons: g.np, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Traffic != out[j].Traffic {
			return out[i].Traffic < out[j].Traffic
		}
		return out[i].NumPlatoons < out[j].NumPlatoons
	})
	return out
}

// SortSummaries orders summaries by platoon size, platoon count and
// traffic type.
func SortSummaries(s []model.Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i].Scenario, s[j].Scenario
		if a.PlatoonSize != b.PlatoonSize {
			return a.PlatoonSize < b.PlatoonSize
		}
		if a.NumPlatoons != b.NumPlatoons {
			return a.NumPlatoons < b.NumPlatoons
		}
		return a.Traffic < b.Traffic
	})
}
