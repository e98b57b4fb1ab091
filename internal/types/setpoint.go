package types

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

const DefaultFrameID = "map"

var ErrInvalidSetpoint = errors.New("invalid setpoint")

// Quaternion is an orientation in x, y, z, w order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// QuaternionFromHeading returns a yaw-only rotation of headingDeg degrees
// about the z axis.
func QuaternionFromHeading(headingDeg float64) Quaternion {
	half := headingDeg * math.Pi / 180 / 2
	return Quaternion{Z: math.Sin(half), W: math.Cos(half)}
}

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) IsUnit() bool {
	return math.Abs(q.Norm()-1) < 1e-6
}

// Setpoint is the target pose streamed to the flight controller.
type Setpoint struct {
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Alt         float64    `json:"alt"`
	Orientation Quaternion `json:"orientation"`
	FrameID     string     `json:"frame_id"`
	UpdatedAt   time.Time  `json:"updated_at"`
	// Stamp is set by the publisher when the setpoint is sent.
	Stamp time.Time `json:"stamp"`
}

// NeutralSetpoint is what the store holds before anything has been set.
func NeutralSetpoint() Setpoint {
	return Setpoint{
		Orientation: IdentityQuaternion(),
		FrameID:     DefaultFrameID,
	}
}

func (s Setpoint) Validate() error {
	for _, v := range []float64{s.Lat, s.Lon, s.Alt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.WithMessagef(ErrInvalidSetpoint, "non-finite position %v,%v,%v", s.Lat, s.Lon, s.Alt)
		}
	}
	if !s.Orientation.IsUnit() {
		return errors.WithMessagef(ErrInvalidSetpoint, "orientation is not a unit quaternion: %+v", s.Orientation)
	}
	return nil
}

// Waypoint is a named, immutable navigation target.
type Waypoint struct {
	Name    string        `json:"name" yaml:"name"`
	Lat     float64       `json:"lat" yaml:"lat"`
	Lon     float64       `json:"lon" yaml:"lon"`
	Alt     float64       `json:"alt" yaml:"alt"`
	Heading float64       `json:"heading" yaml:"heading"`
	Settle  time.Duration `json:"settle" yaml:"settle"`
}

func (w Waypoint) Setpoint() Setpoint {
	return Setpoint{
		Lat:         w.Lat,
		Lon:         w.Lon,
		Alt:         w.Alt,
		Orientation: QuaternionFromHeading(w.Heading),
		FrameID:     DefaultFrameID,
	}
}
