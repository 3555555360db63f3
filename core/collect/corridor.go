package collect

import (
	"fmt"
	"sort"

	"github.com/kilianp07/platoonsim/core/model"
)

func (c *Collector) corridorMetrics(step int, ids []string) (model.StepMetrics, error) {
	m := model.StepMetrics{Step: step, NumVehicles: len(ids)}
	if len(ids) > 0 {
		var sum float64
		for _, id := range ids {
			s, err := c.src.VehicleSpeed(id)
			if err != nil {
				return m, fmt.Errorf("speed of %s: %w", id, err)
			}
			sum += s
		}
		m.AverageSpeedAllVehicles = sum / float64(len(ids))
	}

	gap, err := c.northboundGap()
	if err != nil {
		return m, err
	}
	m.AvgGapNorthbound = gap

	if m.NorthboundFlow, m.NorthboundSpeed, err = c.direction(c.northbound); err != nil {
		return m, err
	}
	if m.SouthboundFlow, m.SouthboundSpeed, err = c.direction(c.southbound); err != nil {
		return m, err
	}
	return m, nil
}

// direction returns the vehicle count on the edges and their
// vehicle-weighted mean speed.
func (c *Collector) direction(edges []string) (int, float64, error) {
	var (
		count int
		speed float64
	)
	for _, e := range edges {
		n, err := c.src.EdgeVehicleCount(e)
		if err != nil {
			return 0, 0, fmt.Errorf("vehicles on %s: %w", e, err)
		}
		mean, err := c.src.EdgeMeanSpeed(e)
		if err != nil {
			return 0, 0, fmt.Errorf("mean speed on %s: %w", e, err)
		}
		count += n
		speed += mean * float64(n)
	}
	return count, speed / float64(max(1, count)), nil
}

// northboundGap averages the distance between consecutive northbound
// vehicles, with positions from every northbound lane pooled and ordered
// together.
func (c *Collector) northboundGap() (float64, error) {
	var pos []float64
	for _, lane := range c.northLanes {
		ids, err := c.src.LaneVehicleIDs(lane)
		if err != nil {
			return 0, fmt.Errorf("vehicles on %s: %w", lane, err)
		}
		for _, id := range ids {
			p, err := c.src.VehicleLanePosition(id)
			if err != nil {
				return 0, fmt.Errorf("lane position of %s: %w", id, err)
			}
			pos = append(pos, p)
		}
	}
	if len(pos) < 2 {
		return 0, nil
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(pos)))
	var total float64
	for i := 1; i < len(pos); i++ {
		total += pos[i-1] - pos[i]
	}
	return total / float64(len(pos)-1), nil
}
