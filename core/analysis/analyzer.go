package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilianp07/platoonsim/core/logger"
	"github.com/kilianp07/platoonsim/core/model"
	"github.com/kilianp07/platoonsim/core/scenario"
)

// Output file names inside a run or sweep directory.
const (
	SummaryTextFile  = "metrics_summary.txt"
	RunChartsFile    = "charts.html"
	SweepChartsFile  = "sweep_charts.html"
	SweepSummaryFile = "sweep_summary.csv"
)

// RunReader loads the metrics written for a run directory.
type RunReader interface {
	ReadRun(dir string) (Run, error)
}

// SummaryStore persists run summaries.
type SummaryStore interface {
	SaveSummary(ctx context.Context, s model.Summary) error
}

// ChartWriter renders run and sweep charts.
type ChartWriter interface {
	RunCharts(path string, r Run) error
	SweepCharts(path string, summaries []model.Summary) error
}

// SweepWriter writes the sweep comparison table.
type SweepWriter interface {
	WriteSweep(path string, summaries []model.Summary) error
}

// Analyzer post-processes a directory of run outputs.
type Analyzer struct {
	reader RunReader
	sweep  SweepWriter
	store  SummaryStore
	charts ChartWriter
	log    logger.Logger
}

// NewAnalyzer returns an analyzer. store and charts may be nil.
func NewAnalyzer(reader RunReader, sweep SweepWriter, store SummaryStore, charts ChartWriter, log logger.Logger) *Analyzer {
	return &Analyzer{reader: reader, sweep: sweep, store: store, charts: charts, log: log}
}

// WriteSummaryFile writes the text summary to path.
func WriteSummaryFile(path string, s model.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSummaryText(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AnalyzeDir summarizes every run directory under dir and writes the sweep
// table and charts. Runs that cannot be analyzed are reported in the
// returned error while the others proceed.
func (a *Analyzer) AnalyzeDir(ctx context.Context, dir string) ([]model.Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var (
		summaries []model.Summary
		errs      []error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sc, err := scenario.ParseRunDir(e.Name())
		if err != nil {
			a.log.Debugf("skipping %s: %v", e.Name(), err)
			continue
		}
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		s, err := a.analyzeRun(ctx, filepath.Join(dir, e.Name()), sc)
		if err != nil {
			a.log.Errorf("analyze %s: %v", e.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		summaries = append(summaries, s)
	}
	if len(summaries) == 0 {
		return nil, errors.Join(append([]error{fmt.Errorf("no analyzable run directories in %s", dir)}, errs...)...)
	}
	SortSummaries(summaries)

	if err := a.sweep.WriteSweep(filepath.Join(dir, SweepSummaryFile), summaries); err != nil {
		errs = append(errs, fmt.Errorf("sweep summary: %w", err))
	}
	if a.charts != nil {
		if err := a.charts.SweepCharts(filepath.Join(dir, SweepChartsFile), summaries); err != nil {
			errs = append(errs, fmt.Errorf("sweep charts: %w", err))
		}
	}
	a.log.Infof("analyzed %d runs in %s", len(summaries), dir)
	return summaries, errors.Join(errs...)
}

func (a *Analyzer) analyzeRun(ctx context.Context, runDir string, sc model.Scenario) (model.Summary, error) {
	run, err := a.reader.ReadRun(runDir)
	if err != nil {
		return model.Summary{}, err
	}
	run.Scenario = sc
	s := Summarize(run)
	if err := WriteSummaryFile(filepath.Join(runDir, SummaryTextFile), s); err != nil {
		return s, err
	}
	if a.store != nil {
		if err := a.store.SaveSummary(ctx, s); err != nil {
			return s, fmt.Errorf("store summary: %w", err)
		}
	}
	if a.charts != nil {
		if err := a.charts.RunCharts(filepath.Join(runDir, RunChartsFile), run); err != nil {
			return s, fmt.Errorf("charts: %w", err)
		}
	}
	return s, nil
}
