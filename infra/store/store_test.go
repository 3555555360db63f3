package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/core/model"
)

func summaries() []model.Summary {
	return []model.Summary{
		{
			RunID:    "r1",
			Scenario: model.Scenario{PlatoonSize: 2, NumPlatoons: 10, Traffic: model.TrafficLight},
			Steps:    3600,
			Values:   map[string]float64{model.KeyAverageFlow: 1200, model.KeyAveragePlatoonHeadway: math.NaN()},
		},
		{
			RunID:    "r2",
			Scenario: model.Scenario{PlatoonSize: 4, NumPlatoons: 10, Traffic: model.TrafficHeavy},
			Steps:    1800,
			Values:   map[string]float64{model.KeyAverageFlow: 900},
		},
	}
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, sum := range summaries() {
		require.NoError(t, s.SaveSummary(ctx, sum))
	}

	all, err := s.Summaries(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].RunID)
	assert.Equal(t, map[string]float64{model.KeyAverageFlow: 1200}, all[0].Values)
	assert.Equal(t, model.TrafficLight, all[0].Scenario.Traffic)

	heavy, err := s.Summaries(ctx, Filter{Traffic: model.TrafficHeavy})
	require.NoError(t, err)
	require.Len(t, heavy, 1)
	assert.Equal(t, 1800, heavy[0].Steps)

	none, err := s.Summaries(ctx, Filter{PlatoonSize: 6})
	require.NoError(t, err)
	assert.Empty(t, none)

	updated := summaries()[1]
	updated.Steps = 3600
	require.NoError(t, s.SaveSummary(ctx, updated))
	bySize, err := s.Summaries(ctx, Filter{PlatoonSize: 4, NumPlatoons: 10})
	require.NoError(t, err)
	require.Len(t, bySize, 1)
	assert.Equal(t, 3600, bySize[0].Steps)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestNewStore(t *testing.T) {
	cfg := Config{Path: filepath.Join(t.TempDir(), "x.db")}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = New(Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.Error(t, Config{Backend: "mongo"}.Validate())
	_, err = New(Config{Backend: "mongo"})
	assert.Error(t, err)
}
