package model

// Corridor lists the main-road edges in each direction of travel.
type Corridor struct {
	Northbound []string `json:"northbound" yaml:"northbound"`
	Southbound []string `json:"southbound" yaml:"southbound"`
}

// DefaultCorridor returns the Fairfax County Parkway main road.
func DefaultCorridor() Corridor {
	return Corridor{
		Northbound: []string{
			"228470926",
			"1318032192",
			"1318032193",
			"1318032191#0",
			"228463837",
			"173228852",
		},
		Southbound: []string{
			"116044310#0",
			"173228850#0",
			"173228850#0-AddedOffRampEdge",
			"173228850#1",
			"228463846#2",
		},
	}
}

// Contains reports whether the edge belongs to either direction.
func (c Corridor) Contains(edgeID string) bool {
	for _, e := range c.Northbound {
		if e == edgeID {
			return true
		}
	}
	for _, e := range c.Southbound {
		if e == edgeID {
			return true
		}
	}
	return false
}

// Empty reports whether no edges are configured.
func (c Corridor) Empty() bool { return len(c.Northbound) == 0 && len(c.Southbound) == 0 }
