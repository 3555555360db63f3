package scenario

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/kilianp07/platoonsim/core/model"
)

// SimplaDir and SimplaFile locate the platoon configuration inside the
// output directory.
const (
	SimplaDir  = "simpla"
	SimplaFile = "simpla.xml"
)

var configPattern = regexp.MustCompile(`^config_ps(\d+)_np(\d+)_traffic_(\w+)\.sumocfg$`)

// RoutesFile returns the routes file name of a scenario.
func RoutesFile(s model.Scenario) string {
	return fmt.Sprintf("routes_ps%d_np%d_traffic_%s.rou.xml", s.PlatoonSize, s.NumPlatoons, s.Traffic)
}

// ConfigFile returns the sumocfg file name of a scenario.
func ConfigFile(s model.Scenario) string {
	return fmt.Sprintf("config_ps%d_np%d_traffic_%s.sumocfg", s.PlatoonSize, s.NumPlatoons, s.Traffic)
}

// ParseConfigFile recovers the scenario from a sumocfg base name.
func ParseConfigFile(name string) (model.Scenario, error) {
	m := configPattern.FindStringSubmatch(name)
	if m == nil {
		return model.Scenario{}, fmt.Errorf("%q does not match config_ps<N>_np<N>_traffic_<type>.sumocfg", name)
	}
	ps, err := strconv.Atoi(m[1])
	if err != nil {
		return model.Scenario{}, fmt.Errorf("platoon size in %q: %w", name, err)
	}
	np, err := strconv.Atoi(m[2])
	if err != nil {
		return model.Scenario{}, fmt.Errorf("platoon count in %q: %w", name, err)
	}
	tt, err := model.ParseTrafficType(m[3])
	if err != nil {
		return model.Scenario{}, fmt.Errorf("%q: %w", name, err)
	}
	return model.Scenario{PlatoonSize: ps, NumPlatoons: np, Traffic: tt}, nil
}

// ParseRunDir recovers the scenario from an output directory name.
func ParseRunDir(name string) (model.Scenario, error) {
	return ParseConfigFile("config_" + name + ".sumocfg")
}
