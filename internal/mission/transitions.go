package mission

import (
	"github.com/pkg/errors"

	"github.com/tiiuae/patrolengine/internal/types"
)

var ErrIllegalTransition = errors.New("illegal mode transition")

// transitions lists every reachable next mode per current mode. A live mode
// may always stay where it is. LANDED is terminal.
var transitions = map[types.MissionMode][]types.MissionMode{
	types.ModePatrol: {
		types.ModePatrol,
		types.ModeInvestigation,
		types.ModeReturnSequence,
	},
	types.ModeInvestigation: {
		types.ModeInvestigation,
		types.ModePatrol,
		types.ModeEmergencyHandling,
		types.ModeNonEmergencyHandling,
	},
	types.ModeEmergencyHandling: {
		types.ModeEmergencyHandling,
		types.ModePatrol,
	},
	types.ModeNonEmergencyHandling: {
		types.ModeNonEmergencyHandling,
		types.ModeEmergencyHandling,
		types.ModePatrol,
	},
	types.ModeReturnSequence: {
		types.ModeReturnSequence,
		types.ModeLanded,
	},
	types.ModeLanded: {},
}

func Allowed(from, to types.MissionMode) bool {
	for _, x := range transitions[from] {
		if x == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to types.MissionMode) error {
	if !Allowed(from, to) {
		return errors.WithMessagef(ErrIllegalTransition, "%v -> %v", from, to)
	}
	return nil
}

// RETURN_SEQUENCE and LANDED are entered on signals from outside the
// decision engine: the abort latch and the end of the scripted sequence.
func checkTrigger(from, to types.MissionMode, s Situation) error {
	if from == to {
		return nil
	}
	switch {
	case to == types.ModeReturnSequence && !s.Aborted:
		return errors.WithMessagef(ErrIllegalTransition, "%v -> %v without abort", from, to)
	case to == types.ModeLanded && !s.SequenceComplete:
		return errors.WithMessagef(ErrIllegalTransition, "%v -> %v before the return sequence completed", from, to)
	}
	return nil
}
