package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/platoon"
)

// Files lists the documents written for one scenario.
type Files struct {
	Scenario model.Scenario
	Routes   string
	Config   string
}

// Failure records a scenario that could not be generated.
type Failure struct {
	Scenario model.Scenario
	Err      error
}

// Result summarizes a Generate call.
type Result struct {
	Files  []Files
	Simpla string
	Failed []Failure
}

// Generator writes SUMO scenario files.
type Generator struct {
	cfg      Config
	corridor model.Corridor
	platoon  platoon.Config
	log      logger.Logger
}

// NewGenerator returns a generator for the given settings.
func NewGenerator(cfg Config, corridor model.Corridor, pc platoon.Config, log logger.Logger) *Generator {
	return &Generator{cfg: cfg, corridor: corridor, platoon: pc, log: log}
}

// Generate writes every scenario into the output directory. Scenarios that
// fail are reported in the result and do not stop the others.
func (g *Generator) Generate(ctx context.Context, scenarios []model.Scenario) (Result, error) {
	var res Result
	if _, err := os.Stat(g.cfg.NetFile); err != nil {
		return res, fmt.Errorf("network file: %w", err)
	}
	if len(g.corridor.Northbound) == 0 {
		return res, errors.New("no northbound edges configured for main_route")
	}
	if err := os.MkdirAll(filepath.Join(g.cfg.OutputDir, SimplaDir), 0o755); err != nil {
		return res, err
	}
	simpla, err := g.writeSimpla()
	if err != nil {
		return res, fmt.Errorf("simpla config: %w", err)
	}
	res.Simpla = simpla
	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		files, err := g.GenerateOne(s)
		if err != nil {
			g.log.Errorf("scenario %s: %v", s.Name(), err)
			res.Failed = append(res.Failed, Failure{Scenario: s, Err: err})
			continue
		}
		g.log.Infof("generated %s", files.Config)
		res.Files = append(res.Files, files)
	}
	return res, nil
}

// GenerateOne writes the routes and sumocfg files of one scenario.
func (g *Generator) GenerateOne(s model.Scenario) (Files, error) {
	if err := s.Validate(); err != nil {
		return Files{}, err
	}
	if s.Traffic == model.TrafficPlatoonOnly && s.NumPlatoons == 0 {
		g.log.Warnf("scenario %s has no platoons and no background traffic, its routes file is empty", s.Name())
	}
	routesPath := filepath.Join(g.cfg.OutputDir, RoutesFile(s))
	configPath := filepath.Join(g.cfg.OutputDir, ConfigFile(s))

	var routes bytes.Buffer
	if err := g.WriteRoutes(&routes, s); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(routesPath, routes.Bytes(), 0o644); err != nil {
		return Files{}, err
	}
	var cfg bytes.Buffer
	if err := g.WriteConfig(&cfg, routesPath); err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(configPath, cfg.Bytes(), 0o644); err != nil {
		return Files{}, err
	}
	return Files{Scenario: s, Routes: routesPath, Config: configPath}, nil
}

// vehicle types shared by every scenario
func (g *Generator) vTypes(withCars bool) []VType {
	speed := num(g.cfg.SpeedLimit)
	types := []VType{
		{ID: "truck", Accel: "1.0", Decel: "3.0", Sigma: "0.5", Length: "10", MinGap: "3", MaxSpeed: speed, Color: "1,1,0"},
	}
	if withCars {
		types = append(types, VType{ID: "car", Accel: "1.5", Decel: "4.5", Sigma: "0.5", Length: "5", MinGap: "2.5", MaxSpeed: speed, Color: "0.5,0.5,0.5"})
	}
	return append(types,
		VType{ID: "truck_platoon_leader", Accel: "1.0", Decel: "3.0", Sigma: "0.0", Length: "10", MinGap: "2", MaxSpeed: speed, Color: "0.8,0.4,0"},
		VType{ID: "truck_platoon_follower", Accel: "1.0", Decel: "3.0", Sigma: "0.0", Length: "10", MinGap: "0.5", MaxSpeed: speed, Color: "0.8,0.8,0"},
	)
}

// WriteRoutes encodes the routes document of a scenario.
func (g *Generator) WriteRoutes(w io.Writer, s model.Scenario) error {
	doc := Routes{
		VTypes: g.vTypes(s.Traffic != model.TrafficPlatoonOnly),
		Routes: []Route{{ID: "main_route", Edges: strings.Join(g.corridor.Northbound, " ")}},
	}
	background := Flow{
		Type:        "car",
		Route:       "main_route",
		Begin:       strconv.Itoa(g.cfg.Begin),
		End:         strconv.Itoa(g.cfg.End),
		DepartLane:  "random",
		DepartSpeed: "max",
	}
	switch s.Traffic {
	case model.TrafficLight:
		background.ID = "light_flow"
		background.Period = num(g.cfg.LightPeriod)
		doc.Flows = append(doc.Flows, background)
	case model.TrafficHeavy:
		background.ID = "heavy_flow_cars"
		background.Period = num(g.cfg.HeavyPeriod)
		doc.Flows = append(doc.Flows, background)
	}
	for i := 0; i < s.NumPlatoons; i++ {
		doc.Flows = append(doc.Flows, Flow{
			ID:          fmt.Sprintf("truck_platoon_%d", i),
			Type:        "truck",
			Route:       "main_route",
			Begin:       strconv.Itoa(g.cfg.Begin + (i+1)*g.cfg.PlatoonSpacing),
			Number:      s.PlatoonSize,
			Period:      "1",
			DepartLane:  "0",
			DepartSpeed: num(g.cfg.SpeedLimit),
		})
	}
	return writeXML(w, doc)
}

// WriteConfig encodes the sumocfg document referencing routesPath. Paths
// are made absolute so the file can be loaded from any working directory.
func (g *Generator) WriteConfig(w io.Writer, routesPath string) error {
	var doc SumoConfig
	net, err := filepath.Abs(g.cfg.NetFile)
	if err != nil {
		return err
	}
	routes, err := filepath.Abs(routesPath)
	if err != nil {
		return err
	}
	doc.Input.NetFile = Value{net}
	doc.Input.RouteFiles = Value{routes}
	if len(g.cfg.AdditionalFiles) > 0 {
		abs := make([]string, len(g.cfg.AdditionalFiles))
		for i, f := range g.cfg.AdditionalFiles {
			if abs[i], err = filepath.Abs(f); err != nil {
				return err
			}
		}
		doc.Input.AdditionalFiles = &Value{strings.Join(abs, ",")}
	}
	doc.Time.Begin = Value{strconv.Itoa(g.cfg.Begin)}
	doc.Time.End = Value{strconv.Itoa(g.cfg.End)}
	doc.Processing.LateralResolution = Value{num(g.cfg.LateralResolution)}
	doc.Report.Verbose = Value{"true"}
	doc.Report.NoStepLog = Value{"true"}
	doc.GUIOnly.Start = Value{"true"}
	doc.RandomNumber.Seed = Value{strconv.Itoa(g.cfg.Seed)}
	return writeXML(w, doc)
}

// writeSimpla creates the platoon configuration once; an existing file is
// left untouched.
func (g *Generator) writeSimpla() (string, error) {
	path := filepath.Join(g.cfg.OutputDir, SimplaDir, SimplaFile)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	var buf bytes.Buffer
	if err := g.platoon.WriteXML(&buf); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}
