package types

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownMode = errors.New("unknown mission mode")

// MissionMode is the single active high level behaviour of the vehicle.
type MissionMode uint8

const (
	ModePatrol MissionMode = iota
	ModeInvestigation
	ModeEmergencyHandling
	ModeNonEmergencyHandling
	ModeReturnSequence
	ModeLanded
)

var missionModeNames = [...]string{
	ModePatrol:               "PATROL",
	ModeInvestigation:        "INVESTIGATION",
	ModeEmergencyHandling:    "EMERGENCY_HANDLING",
	ModeNonEmergencyHandling: "NON_EMERGENCY_HANDLING",
	ModeReturnSequence:       "RETURN_SEQUENCE",
	ModeLanded:               "LANDED",
}

// MissionModes lists every mode in declaration order.
func MissionModes() []MissionMode {
	return []MissionMode{
		ModePatrol,
		ModeInvestigation,
		ModeEmergencyHandling,
		ModeNonEmergencyHandling,
		ModeReturnSequence,
		ModeLanded,
	}
}

func (m MissionMode) Valid() bool {
	return int(m) < len(missionModeNames)
}

func (m MissionMode) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return missionModeNames[m]
}

func ParseMissionMode(s string) (MissionMode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range missionModeNames {
		if n == name {
			return MissionMode(i), nil
		}
	}
	return 0, errors.WithMessagef(ErrUnknownMode, "'%s'", s)
}

func (m MissionMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MissionMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMissionMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
