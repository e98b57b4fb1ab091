package types

import "time"

// Message types carried on the bus.
const (
	MessageDisplayHints      = "display-hints"
	MessageAlert             = "alert"
	MessageModeChanged       = "mode-changed"
	MessageEmergencyRecorded = "emergency-recorded"
	MessageEmergencyResolved = "emergency-resolved"
	MessageObservation       = "observation-reported"
	MessageDecisionFailed    = "decision-failed"
	MessageLedgerReport      = "ledger-report"
	MessageFlightCommand     = "flight-command"
)

// DisplayHints are banner texts for the video overlay. Empty strings clear a
// banner.
type DisplayHints struct {
	Top    string `json:"top"`
	Middle string `json:"middle"`
	Bottom string `json:"bottom"`
}

func (h DisplayHints) Empty() bool {
	return h.Top == "" && h.Middle == "" && h.Bottom == ""
}

type AlertKind string

const (
	AlertSiren AlertKind = "siren"
	AlertAudio AlertKind = "audio"
)

type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

type ModeChanged struct {
	From MissionMode `json:"from"`
	To   MissionMode `json:"to"`
}

type EmergencyRecorded struct {
	ID       int64         `json:"id"`
	Type     EmergencyType `json:"type"`
	Location Location      `json:"location"`
	Severity int           `json:"severity"`
}

type EmergencyResolved struct {
	ID int64 `json:"id"`
}

type ObservationReported struct {
	Observation
	Investigating bool `json:"investigating"`
}

type DecisionFailed struct {
	Mode  MissionMode `json:"mode"`
	Error string      `json:"error"`
}

type FlightCommand struct {
	Command string `json:"command"`
	Mode    string `json:"mode,omitempty"`
	Error   string `json:"error,omitempty"`
}

type LedgerReport struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Total       int                   `json:"total"`
	InProgress  int                   `json:"in_progress"`
	Resolved    int                   `json:"resolved"`
	ByType      map[EmergencyType]int `json:"by_type"`
}
