package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/ringer"
	"github.com/relabs-tech/automute/internal/sensors"
)

func TestSimulationPocketCycle(t *testing.T) {
	var out bytes.Buffer
	readings := sensors.PocketCycle(100*time.Millisecond, 10, 4)

	res, err := RunSimulation(engine.DefaultSettings(), readings, guard.State{InterruptionFilterAllowsAll: true}, &out)
	require.NoError(t, err)

	assert.Equal(t, 80, res.Readings)
	// 300ms gate over 4s of samples
	assert.Equal(t, 14, res.Evaluations)

	var modes []ringer.Mode
	for _, ev := range res.Transitions {
		modes = append(modes, ev.To)
	}
	assert.Equal(t, []ringer.Mode{ringer.Vibrate, ringer.Normal, ringer.Vibrate}, modes)
	assert.Equal(t, ringer.Vibrate, res.FinalMode)
	assert.Contains(t, out.String(), "transitions=3 final=vibrate")
}

func TestSimulationWithDoNotDisturb(t *testing.T) {
	var out bytes.Buffer
	readings := sensors.PocketCycle(100*time.Millisecond, 10, 2)

	res, err := RunSimulation(engine.DefaultSettings(), readings, guard.State{}, &out)
	require.NoError(t, err)

	assert.Empty(t, res.Transitions)
	assert.Equal(t, ringer.Normal, res.FinalMode)
	assert.True(t, strings.Contains(out.String(), "veto=interruption_filter"))
}

func TestSimulationDisplayOnNeverStarts(t *testing.T) {
	var out bytes.Buffer
	readings := sensors.PocketCycle(100*time.Millisecond, 10, 2)

	res, err := RunSimulation(engine.DefaultSettings(), readings,
		guard.State{InterruptionFilterAllowsAll: true, DisplayInteractive: true}, &out)
	require.NoError(t, err)
	assert.Zero(t, res.Evaluations)
}
