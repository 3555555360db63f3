package platoon

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// VTypeMap maps an original vehicle type to its platoon leader and follower
// types.
type VTypeMap struct {
	Original string
	Leader   string
	Follower string
}

// Config mirrors the simpla configuration file.
type Config struct {
	VehicleSelectors       []string
	MaxVehicleLength       float64
	MaxPlatoonGap          float64
	CatchupHeadway         float64
	PlatoonSplitTime       float64
	ManagedLanes           []string
	MinGap                 float64
	CatchupSpeed           float64
	SwitchImpatienceFactor float64
	LCMode                 int
	SpeedFactor            float64
	Verbosity              int
	VTypeMaps              []VTypeMap
}

// DefaultConfig returns the truck platooning configuration.
func DefaultConfig() Config {
	return Config{
		VehicleSelectors:       []string{"truck"},
		MaxVehicleLength:       12.0,
		MaxPlatoonGap:          10.0,
		CatchupHeadway:         2.0,
		PlatoonSplitTime:       3.0,
		MinGap:                 0.5,
		CatchupSpeed:           0.15,
		SwitchImpatienceFactor: 1.0,
		LCMode:                 597,
		SpeedFactor:            1.0,
		Verbosity:              3,
		VTypeMaps: []VTypeMap{
			{Original: "truck", Leader: "truck_platoon_leader", Follower: "truck_platoon_follower"},
		},
	}
}

// Validate checks that the configuration can drive a manager.
func (c Config) Validate() error {
	if len(c.VehicleSelectors) == 0 {
		return fmt.Errorf("vehicleSelectors is empty")
	}
	if c.MaxPlatoonGap <= 0 {
		return fmt.Errorf("maxPlatoonGap must be positive")
	}
	if c.PlatoonSplitTime < 0 {
		return fmt.Errorf("platoonSplitTime must not be negative")
	}
	for _, m := range c.VTypeMaps {
		if m.Original == "" || m.Leader == "" || m.Follower == "" {
			return fmt.Errorf("vTypeMap requires original, leader and follower")
		}
	}
	return nil
}

// mapping returns the vType map entry for an original type.
func (c Config) mapping(original string) (VTypeMap, bool) {
	for _, m := range c.VTypeMaps {
		if m.Original == original {
			return m, true
		}
	}
	return VTypeMap{}, false
}

// selects reports whether vehicles of the given type are managed.
func (c Config) selects(vType string) bool {
	for _, s := range c.VehicleSelectors {
		if s != "" && strings.Contains(vType, s) {
			return true
		}
	}
	return false
}

// managedLane reports whether platooning is active on the lane.
func (c Config) managedLane(laneID string) bool {
	if len(c.ManagedLanes) == 0 {
		return true
	}
	for _, l := range c.ManagedLanes {
		if l == laneID {
			return true
		}
	}
	return false
}

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type vTypeMapXML struct {
	Original string `xml:"original,attr"`
	Leader   string `xml:"leader,attr"`
	Follower string `xml:"follower,attr"`
}

type configXML struct {
	XMLName                xml.Name      `xml:"configuration"`
	VehicleSelectors       valueAttr     `xml:"vehicleSelectors"`
	MaxVehicleLength       valueAttr     `xml:"maxVehicleLength"`
	MaxPlatoonGap          valueAttr     `xml:"maxPlatoonGap"`
	CatchupHeadway         valueAttr     `xml:"catchupHeadway"`
	PlatoonSplitTime       valueAttr     `xml:"platoonSplitTime"`
	ManagedLanes           valueAttr     `xml:"managedLanes"`
	MinGap                 valueAttr     `xml:"mingap"`
	CatchupSpeed           valueAttr     `xml:"catchupSpeed"`
	SwitchImpatienceFactor valueAttr     `xml:"switchImpatienceFactor"`
	LCMode                 valueAttr     `xml:"lcMode"`
	SpeedFactor            valueAttr     `xml:"speedFactor"`
	Verbosity              valueAttr     `xml:"verbosity"`
	VTypeMaps              []vTypeMapXML `xml:"vTypeMap"`
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// WriteXML encodes the configuration in the simpla file format.
func (c Config) WriteXML(w io.Writer) error {
	doc := configXML{
		VehicleSelectors:       valueAttr{strings.Join(c.VehicleSelectors, ",")},
		MaxVehicleLength:       valueAttr{formatFloat(c.MaxVehicleLength)},
		MaxPlatoonGap:          valueAttr{formatFloat(c.MaxPlatoonGap)},
		CatchupHeadway:         valueAttr{formatFloat(c.CatchupHeadway)},
		PlatoonSplitTime:       valueAttr{formatFloat(c.PlatoonSplitTime)},
		ManagedLanes:           valueAttr{strings.Join(c.ManagedLanes, ",")},
		MinGap:                 valueAttr{formatFloat(c.MinGap)},
		CatchupSpeed:           valueAttr{formatFloat(c.CatchupSpeed)},
		SwitchImpatienceFactor: valueAttr{formatFloat(c.SwitchImpatienceFactor)},
		LCMode:                 valueAttr{strconv.Itoa(c.LCMode)},
		SpeedFactor:            valueAttr{formatFloat(c.SpeedFactor)},
		Verbosity:              valueAttr{strconv.Itoa(c.Verbosity)},
	}
	for _, m := range c.VTypeMaps {
		doc.VTypeMaps = append(doc.VTypeMaps, vTypeMapXML(m))
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ReadConfig decodes a simpla file. Elements missing from the file keep
// their default values.
func ReadConfig(r io.Reader) (Config, error) {
	var doc configXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("decode simpla config: %w", err)
	}
	cfg := DefaultConfig()
	var errs []string
	setFloat := func(name string, a valueAttr, dst *float64) {
		if a.Value == "" {
			return
		}
		v, err := strconv.ParseFloat(a.Value, 64)
		if err != nil {
			errs = append(errs, name)
			return
		}
		*dst = v
	}
	setInt := func(name string, a valueAttr, dst *int) {
		if a.Value == "" {
			return
		}
		v, err := strconv.Atoi(a.Value)
		if err != nil {
			errs = append(errs, name)
			return
		}
		*dst = v
	}
	if doc.VehicleSelectors.Value != "" {
		cfg.VehicleSelectors = splitList(doc.VehicleSelectors.Value)
	}
	cfg.ManagedLanes = splitList(doc.ManagedLanes.Value)
	setFloat("maxVehicleLength", doc.MaxVehicleLength, &cfg.MaxVehicleLength)
	setFloat("maxPlatoonGap", doc.MaxPlatoonGap, &cfg.MaxPlatoonGap)
	setFloat("catchupHeadway", doc.CatchupHeadway, &cfg.CatchupHeadway)
	setFloat("platoonSplitTime", doc.PlatoonSplitTime, &cfg.PlatoonSplitTime)
	setFloat("mingap", doc.MinGap, &cfg.MinGap)
	setFloat("catchupSpeed", doc.CatchupSpeed, &cfg.CatchupSpeed)
	setFloat("switchImpatienceFactor", doc.SwitchImpatienceFactor, &cfg.SwitchImpatienceFactor)
	setFloat("speedFactor", doc.SpeedFactor, &cfg.SpeedFactor)
	setInt("lcMode", doc.LCMode, &cfg.LCMode)
	setInt("verbosity", doc.Verbosity, &cfg.Verbosity)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid simpla values: %s", strings.Join(errs, ", "))
	}
	if len(doc.VTypeMaps) > 0 {
		cfg.VTypeMaps = cfg.VTypeMaps[:0]
		for _, m := range doc.VTypeMaps {
			cfg.VTypeMaps = append(cfg.VTypeMaps, VTypeMap(m))
		}
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a simpla file from disk.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return ReadConfig(f)
}

// splitList accepts both comma and whitespace separated lists.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return nil
	}
	return fields
}
