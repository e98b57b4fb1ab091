package mission

import (
	"time"

	"github.com/pkg/errors"

	"github.com/tiiuae/patrolengine/internal/types"
)

var ErrInvalidWaypoint = errors.New("invalid waypoint")

// DefaultWaypoints is the return-to-base route T1, T2, T3.
func DefaultWaypoints() []types.Waypoint {
	return []types.Waypoint{
		{Name: "T1", Lat: 37.41088, Lon: -121.995779, Alt: 10.976070637865277, Heading: 20, Settle: 15 * time.Second},
		{Name: "T2", Lat: 37.4108685, Lon: -121.9956703, Alt: 10.981151277266619, Heading: 130, Settle: 2 * time.Second},
		{Name: "T3", Lat: 37.4109347, Lon: -121.9956734, Alt: 9.766243752354391, Heading: 200, Settle: 2 * time.Second},
	}
}

func ValidateWaypoints(waypoints []types.Waypoint) error {
	if len(waypoints) == 0 {
		return errors.WithMessage(ErrInvalidWaypoint, "return sequence is empty")
	}
	for i, wp := range waypoints {
		if err := wp.Setpoint().Validate(); err != nil {
			return errors.WithMessagef(ErrInvalidWaypoint, "waypoint %d (%s): %v", i+1, wp.Name, err)
		}
		if wp.Settle < 0 {
			return errors.WithMessagef(ErrInvalidWaypoint, "waypoint %d (%s): negative settle delay", i+1, wp.Name)
		}
	}
	return nil
}
