package mission

import (
	"fmt"

	"github.com/tiiuae/patrolengine/internal/types"
)

// Situation is everything a handler may look at for one dispatch.
type Situation struct {
	// Decision is nil for ticks that are not driven by the decision engine.
	Decision         *types.Decision
	Frame            *types.Frame
	Aborted          bool
	SequenceComplete bool
	// ActiveEmergency is the ledger id of the emergency being handled, 0 if none.
	ActiveEmergency int64
	// Pending holds emergency details seen on the way into EMERGENCY_HANDLING.
	Pending *types.EmergencyDetails
}

// Outcome is what a handler asks for. The dispatcher validates the whole
// outcome before applying any of it.
type Outcome struct {
	// Next is nil when the handler wants to stay in the current mode.
	Next             *types.MissionMode
	MoveTo           *types.Location
	RecordEmergency  *types.EmergencyDetails
	ResolveEmergency bool
	// Carry is remembered as Situation.Pending until the mission is back
	// in PATROL.
	Carry       *types.EmergencyDetails
	Hints       *types.DisplayHints
	Alerts      []types.Alert
	Observation *types.ObservationReported
	FollowPath  bool
}

type Handler interface {
	Handle(s Situation) Outcome
}

type HandlerFunc func(s Situation) Outcome

func (f HandlerFunc) Handle(s Situation) Outcome {
	return f(s)
}

// DefaultHandlers returns one handler per mission mode.
func DefaultHandlers() map[types.MissionMode]Handler {
	return map[types.MissionMode]Handler{
		types.ModePatrol:               HandlerFunc(handlePatrol),
		types.ModeInvestigation:        HandlerFunc(handleInvestigation),
		types.ModeEmergencyHandling:    HandlerFunc(handleEmergency),
		types.ModeNonEmergencyHandling: HandlerFunc(handleNonEmergency),
		types.ModeReturnSequence:       HandlerFunc(handleReturnSequence),
		types.ModeLanded:               HandlerFunc(handleLanded),
	}
}

func handlePatrol(s Situation) Outcome {
	if s.Aborted {
		return Outcome{Next: types.ModeRef(types.ModeReturnSequence)}
	}
	d := s.Decision
	if d == nil {
		return Outcome{}
	}

	out := Outcome{Next: d.NextMode, FollowPath: d.Has(types.ActionFollowPath)}
	if d.Requests(types.ModeInvestigation) {
		out.FollowPath = false
	}
	return out
}

func handleInvestigation(s Situation) Outcome {
	d := s.Decision
	if d == nil {
		return Outcome{}
	}

	out := Outcome{Next: d.NextMode}
	if d.Has(types.ActionMoveToImageCoordinates) && d.Target != nil {
		out.MoveTo = d.Target
		out.Hints = &types.DisplayHints{Top: "Moving closer to investigate"}
	}

	switch {
	case d.Requests(types.ModePatrol):
		out.Hints = &types.DisplayHints{}
	case d.Requests(types.ModeEmergencyHandling):
		out.Carry = d.Emergency
	case d.Requests(types.ModeNonEmergencyHandling) && d.Observation != nil:
		out.Observation = &types.ObservationReported{Observation: *d.Observation}
	}
	return out
}

func handleEmergency(s Situation) Outcome {
	d := s.Decision
	if d == nil {
		return Outcome{}
	}

	out := Outcome{Next: d.NextMode}
	if d.Requests(types.ModePatrol) {
		out.ResolveEmergency = s.ActiveEmergency != 0
		out.Hints = &types.DisplayHints{}
		return out
	}

	details := d.Emergency
	if details == nil {
		details = s.Pending
	}
	if s.ActiveEmergency == 0 && details != nil {
		out.RecordEmergency = details
	}

	hints := types.DisplayHints{}
	if d.Has(types.ActionObserveAndReportEmergency) && details != nil {
		hints.Top = fmt.Sprintf("Observing emergency: %s", details.Type)
	}
	if d.Has(types.ActionCallSiren) {
		hints.Middle = "SIREN ACTIVE"
		out.Alerts = append(out.Alerts, types.Alert{Kind: types.AlertSiren})
	}
	if d.Has(types.ActionAudioMessage) && d.Message != "" {
		out.Alerts = append(out.Alerts, types.Alert{Kind: types.AlertAudio, Message: d.Message})
	}
	if d.Has(types.ActionCallEmergencyServices) && details != nil {
		hints.Bottom = fmt.Sprintf("Emergency services called: %s, severity %d", details.Type, details.Severity)
	}
	if !hints.Empty() {
		out.Hints = &hints
	}

	if d.Has(types.ActionMoveToImageCoordinates) && d.Target != nil {
		out.MoveTo = d.Target
	}
	return out
}

func handleNonEmergency(s Situation) Outcome {
	d := s.Decision
	if d == nil {
		return Outcome{}
	}

	out := Outcome{Next: d.NextMode}
	switch {
	case d.Requests(types.ModePatrol):
		out.Hints = &types.DisplayHints{}
		return out
	case d.Requests(types.ModeEmergencyHandling):
		out.Carry = d.Emergency
		return out
	}

	if d.Observation != nil {
		investigating := d.Has(types.ActionInvestigateObservation)
		if investigating || d.Has(types.ActionReportObservation) {
			out.Observation = &types.ObservationReported{Observation: *d.Observation, Investigating: investigating}
			verb := "Reporting"
			if investigating {
				verb = "Investigating"
			}
			out.Hints = &types.DisplayHints{Top: fmt.Sprintf("%s observation: %s", verb, d.Observation.Type)}
		}
	}
	if d.Has(types.ActionAudioMessage) && d.Message != "" {
		out.Alerts = append(out.Alerts, types.Alert{Kind: types.AlertAudio, Message: d.Message})
	}
	if d.Has(types.ActionMoveToImageCoordinates) && d.Target != nil {
		out.MoveTo = d.Target
	}
	return out
}

// The return sequence is scripted; decisions are ignored.
func handleReturnSequence(s Situation) Outcome {
	if s.SequenceComplete {
		return Outcome{Next: types.ModeRef(types.ModeLanded)}
	}
	return Outcome{}
}

func handleLanded(s Situation) Outcome {
	return Outcome{}
}
