package platoon

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWriteXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DefaultConfig().WriteXML(&buf))
	out := buf.String()
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<vehicleSelectors value="truck"></vehicleSelectors>`,
		`<maxVehicleLength value="12.0"></maxVehicleLength>`,
		`<catchupSpeed value="0.15"></catchupSpeed>`,
		`<lcMode value="597"></lcMode>`,
		`<managedLanes value=""></managedLanes>`,
		`<vTypeMap original="truck" leader="truck_platoon_leader" follower="truck_platoon_follower"></vTypeMap>`,
	} {
		assert.Contains(t, out, want)
	}

	back, err := ReadConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), back)
}

func TestReadConfigPartial(t *testing.T) {
	doc := `<configuration>
    <vehicleSelectors value="truck, bus"/>
    <maxPlatoonGap value="25"/>
    <managedLanes value="a_0 b_0"/>
</configuration>`
	cfg, err := ReadConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"truck", "bus"}, cfg.VehicleSelectors)
	assert.Equal(t, 25.0, cfg.MaxPlatoonGap)
	assert.Equal(t, []string{"a_0", "b_0"}, cfg.ManagedLanes)
	assert.Equal(t, 3.0, cfg.PlatoonSplitTime)
	assert.Len(t, cfg.VTypeMaps, 1)
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(strings.NewReader(`<configuration><maxPlatoonGap value="wide"/></configuration>`))
	assert.ErrorContains(t, err, "maxPlatoonGap")

	_, err = ReadConfig(strings.NewReader(`<configuration><maxPlatoonGap value="0"/></configuration>`))
	assert.Error(t, err)

	_, err = ReadConfig(strings.NewReader(`not xml`))
	assert.Error(t, err)

	_, err = LoadConfig("does/not/exist.xml")
	assert.Error(t, err)
}

func TestConfigSelects(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.selects("truck"))
	assert.True(t, cfg.selects("truck_platoon_leader"))
	assert.False(t, cfg.selects("car"))
	assert.True(t, cfg.managedLane("any_0"))
	cfg.ManagedLanes = []string{"x_0"}
	assert.False(t, cfg.managedLane("any_0"))
}
