package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiiuae/patrolengine/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.ReturnSequence, 3)
	assert.Equal(t, 15*time.Second, cfg.ReturnSequence[0].Settle)
	assert.Equal(t, "AUTO.LAND", cfg.Mission.FinalMode)
	assert.True(t, cfg.Decision.SecurityCheck)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device_id: drone-7
mqtt:
  broker: tcp://localhost:1883
navigation:
  rate_hz: 20
mission:
  decision_timeout: 10s
return_sequence:
  - name: home
    lat: 60.1
    lon: 24.9
    alt: 12
    heading: 90
    settle: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.DeviceID = "drone-7"
	want.MQTT.Broker = "tcp://localhost:1883"
	want.Navigation.RateHz = 20
	want.Mission.DecisionTimeout = 10 * time.Second
	want.ReturnSequence = []types.Waypoint{{Name: "home", Lat: 60.1, Lon: 24.9, Alt: 12, Heading: 90, Settle: 3 * time.Second}}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	for name, content := range map[string]string{
		"unknown key":      "colour: blue\n",
		"zero rate":        "navigation:\n  rate_hz: 0\n",
		"negative timeout": "mission:\n  command_timeout: -1s\n",
		"empty sequence":   "return_sequence: []\n",
		"bad settle":       "return_sequence:\n  - {name: x, lat: 1, lon: 1, alt: 1, settle: -2s}\n",
		"wide camera":      "camera:\n  hfov_deg: 190\n",
		"negative step":    "camera:\n  max_step_m: -1\n",
		"no model":         "decision:\n  model: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.True(t, errors.Is(err, ErrInvalidConfig), "%v", err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
