package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/scenario"
)

// Job is one scenario configuration to simulate.
type Job struct {
	Scenario   model.Scenario
	ConfigPath string
}

// Discover lists the sumocfg files of dir in name order. Files whose name
// does not encode a scenario are skipped with a warning.
func Discover(dir string, log logger.Logger) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sumocfg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var jobs []Job
	for _, name := range names {
		sc, err := scenario.ParseConfigFile(name)
		if err != nil {
			log.Warnf("skipping %s: %v", name, err)
			continue
		}
		jobs = append(jobs, Job{Scenario: sc, ConfigPath: filepath.Join(dir, name)})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no scenario configurations found in %s", dir)
	}
	return jobs, nil
}
