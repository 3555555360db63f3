package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	URL      string
	Interval int
}

func sinkFactory(conf map[string]any) (*sink, error) {
	var c struct {
		URL      string `json:"url"`
		Interval int    `json:"interval"`
	}
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &sink{URL: c.URL, Interval: c.Interval}, nil
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*sink]()
	require.NoError(t, reg.Register("influx", sinkFactory))

	s, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://x", "interval": 3}})
	require.NoError(t, err)
	assert.Equal(t, &sink{URL: "http://x", Interval: 3}, s)
}

func TestDecodeWeakTypes(t *testing.T) {
	reg := NewRegistry[*sink]()
	require.NoError(t, reg.Register("influx", sinkFactory))
	s, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"interval": "15"}})
	require.NoError(t, err)
	assert.Equal(t, 15, s.Interval)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[*sink]()
	assert.Error(t, reg.Register("nil", nil))
	require.NoError(t, reg.Register("b", sinkFactory))
	require.NoError(t, reg.Register("a", sinkFactory))
	assert.Error(t, reg.Register("a", sinkFactory))
	assert.Equal(t, []string{"a", "b"}, reg.Types())

	_, err := reg.Create(ModuleConfig{Type: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: a, b")
}
