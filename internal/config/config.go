// Package config loads the patrol engine configuration from YAML.
package config

import (
	"bytes"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tiiuae/patrolengine/internal/mission"
	"github.com/tiiuae/patrolengine/internal/types"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DeviceID       string           `yaml:"device_id"`
	MQTT           MQTT             `yaml:"mqtt"`
	HTTP           HTTP             `yaml:"http"`
	Ledger         Ledger           `yaml:"ledger"`
	Navigation     Navigation       `yaml:"navigation"`
	Mission        Mission          `yaml:"mission"`
	ReturnSequence []types.Waypoint `yaml:"return_sequence"`
	Camera         Camera           `yaml:"camera"`
	Decision       Decision         `yaml:"decision"`
	Reports        Reports          `yaml:"reports"`
}

type MQTT struct {
	Broker     string `yaml:"broker"`
	PrivateKey string `yaml:"private_key"`
	Algorithm  string `yaml:"algorithm"`
	ProjectID  string `yaml:"project_id"`
	Region     string `yaml:"region"`
	RegistryID string `yaml:"registry_id"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Ledger struct {
	DBPath string `yaml:"db_path"`
}

type Navigation struct {
	RateHz      float64       `yaml:"rate_hz"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

type Mission struct {
	FramePoll       time.Duration `yaml:"frame_poll"`
	DecisionTimeout time.Duration `yaml:"decision_timeout"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	OffboardMode    string        `yaml:"offboard_mode"`
	FinalMode       string        `yaml:"final_mode"`
	FinalLook       bool          `yaml:"final_look"`
}

// Camera describes the downward camera. MaxStepM caps a single
// repositioning move in metres, 0 disables the cap.
type Camera struct {
	HFOVDeg  float64 `yaml:"hfov_deg"`
	VFOVDeg  float64 `yaml:"vfov_deg"`
	MaxStepM float64 `yaml:"max_step_m"`
}

// Decision configures the model. With SecurityCheck the model also reviews
// the text of every decision before it is used.
type Decision struct {
	Model         string `yaml:"model"`
	MaxTokens     int    `yaml:"max_tokens"`
	SecurityCheck bool   `yaml:"security_check"`
}

type Reports struct {
	Schedule string `yaml:"schedule"`
}

func Default() Config {
	return Config{
		MQTT: MQTT{
			Algorithm:  "RS256",
			ProjectID:  "auto-fleet-mgnt",
			Region:     "europe-west1",
			RegistryID: "fleet-registry",
		},
		HTTP:   HTTP{Addr: ":8000"},
		Ledger: Ledger{DBPath: "emergencies.db"},
		Navigation: Navigation{
			RateHz:      10,
			SendTimeout: 50 * time.Millisecond,
		},
		Mission: Mission{
			FramePoll:       100 * time.Millisecond,
			DecisionTimeout: 30 * time.Second,
			CommandTimeout:  2 * time.Second,
			OffboardMode:    "OFFBOARD",
			FinalMode:       "AUTO.LAND",
		},
		ReturnSequence: mission.DefaultWaypoints(),
		Camera:         Camera{HFOVDeg: 69, VFOVDeg: 42, MaxStepM: 50},
		Decision:       Decision{Model: "gpt-4o-mini", MaxTokens: 500, SecurityCheck: true},
		Reports:        Reports{Schedule: "@every 1m"},
	}
}

// Load reads path on top of Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WithMessage(err, "Could not read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.WithMessagef(ErrInvalidConfig, "%s: %v", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	positive := map[string]time.Duration{
		"navigation.send_timeout":  c.Navigation.SendTimeout,
		"mission.frame_poll":       c.Mission.FramePoll,
		"mission.decision_timeout": c.Mission.DecisionTimeout,
		"mission.command_timeout":  c.Mission.CommandTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			return errors.WithMessagef(ErrInvalidConfig, "%s must be positive", key)
		}
	}
	if !(c.Navigation.RateHz > 0) || math.IsInf(c.Navigation.RateHz, 0) {
		return errors.WithMessage(ErrInvalidConfig, "navigation.rate_hz must be positive")
	}
	if !(c.Camera.HFOVDeg > 0 && c.Camera.HFOVDeg < 180) || !(c.Camera.VFOVDeg > 0 && c.Camera.VFOVDeg < 180) {
		return errors.WithMessage(ErrInvalidConfig, "camera field of view must be within (0, 180) degrees")
	}
	if !(c.Camera.MaxStepM >= 0) || math.IsInf(c.Camera.MaxStepM, 0) {
		return errors.WithMessage(ErrInvalidConfig, "camera.max_step_m must be zero or positive")
	}
	if c.Mission.OffboardMode == "" {
		return errors.WithMessage(ErrInvalidConfig, "mission.offboard_mode is required")
	}
	if c.Decision.Model == "" || c.Decision.MaxTokens <= 0 {
		return errors.WithMessage(ErrInvalidConfig, "decision.model and decision.max_tokens are required")
	}
	if c.Reports.Schedule == "" {
		return errors.WithMessage(ErrInvalidConfig, "reports.schedule is required")
	}
	if err := mission.ValidateWaypoints(c.ReturnSequence); err != nil {
		return errors.WithMessage(ErrInvalidConfig, err.Error())
	}
	return nil
}
