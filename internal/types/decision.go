package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var ErrUnknownEmergencyType = errors.New("unknown emergency type")

type EmergencyType string

const (
	EmergencyCarCrash           EmergencyType = "car_crash"
	EmergencyFire               EmergencyType = "fire"
	EmergencyMedical            EmergencyType = "medical_emergency"
	EmergencyNaturalDisaster    EmergencyType = "natural_disaster"
	EmergencySuspiciousActivity EmergencyType = "suspicious_activity"
	EmergencyOther              EmergencyType = "other"
)

func EmergencyTypes() []EmergencyType {
	return []EmergencyType{
		EmergencyCarCrash,
		EmergencyFire,
		EmergencyMedical,
		EmergencyNaturalDisaster,
		EmergencySuspiciousActivity,
		EmergencyOther,
	}
}

func (t EmergencyType) Valid() bool {
	for _, x := range EmergencyTypes() {
		if x == t {
			return true
		}
	}
	return false
}

type ObservationType string

const (
	ObservationDamagedInfrastructure ObservationType = "damaged_infrastructure"
	ObservationSmoke                 ObservationType = "smoke"
	ObservationSuspiciousActivity    ObservationType = "suspicious_activity"
	ObservationEnvironmentalIssue    ObservationType = "environmental_issue"
	ObservationOther                 ObservationType = "other"
)

func (t ObservationType) Valid() bool {
	switch t {
	case ObservationDamagedInfrastructure, ObservationSmoke, ObservationSuspiciousActivity,
		ObservationEnvironmentalIssue, ObservationOther:
		return true
	}
	return false
}

// Location is either normalized image coordinates or world coordinates,
// depending on who filled it in.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Action string

const (
	ActionNone                      Action = "none"
	ActionFollowPath                Action = "follow_path"
	ActionMoveToImageCoordinates    Action = "move_to_image_coordinates"
	ActionCallEmergencyServices     Action = "call_emergency_services"
	ActionObserveAndReportEmergency Action = "observe_and_report_emergency"
	ActionReportObservation         Action = "report_observation"
	ActionInvestigateObservation    Action = "investigate_observation"
	ActionCallSiren                 Action = "call_siren"
	ActionAudioMessage              Action = "audio_message"
)

func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionFollowPath, ActionMoveToImageCoordinates, ActionCallEmergencyServices,
		ActionObserveAndReportEmergency, ActionReportObservation, ActionInvestigateObservation,
		ActionCallSiren, ActionAudioMessage:
		return true
	}
	return false
}

type EmergencyDetails struct {
	Type        EmergencyType `json:"type"`
	Location    Location      `json:"location"`
	Severity    int           `json:"severity"`
	Description string        `json:"description,omitempty"`
}

type Observation struct {
	Type        ObservationType `json:"type"`
	Location    Location        `json:"location"`
	Description string          `json:"description,omitempty"`
}

// Decision is what the decision engine recommends for one frame.
// NextMode is nil when the engine has no opinion about the mode.
type Decision struct {
	NextMode    *MissionMode      `json:"next_mode,omitempty"`
	Actions     []Action          `json:"actions"`
	Target      *Location         `json:"target,omitempty"`
	Emergency   *EmergencyDetails `json:"emergency,omitempty"`
	Observation *Observation      `json:"observation,omitempty"`
	Message     string            `json:"message,omitempty"`
	Summary     string            `json:"summary,omitempty"`
}

func (d Decision) Requests(mode MissionMode) bool {
	return d.NextMode != nil && *d.NextMode == mode
}

func (d Decision) Has(action Action) bool {
	for _, a := range d.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (d Decision) String() string {
	b, _ := json.Marshal(d)
	return string(b)
}

func ModeRef(m MissionMode) *MissionMode {
	return &m
}
