package flight

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tiiuae/patrolengine/internal/types"
)

var (
	ErrOutOfRange  = errors.New("image coordinates out of range")
	ErrStepTooLong = errors.New("projected step too long")
)

// Projector turns a point in the current camera image into a new setpoint.
type Projector interface {
	Project(from types.Setpoint, target types.Location) (types.Setpoint, error)
}

// CameraProjector assumes a downward looking camera whose image top points
// along the vehicle heading. The ground footprint scales with altitude.
// A positive MaxStepMetres rejects moves longer than that.
type CameraProjector struct {
	HFOVDeg       float64
	VFOVDeg       float64
	MaxStepMetres float64
}

func (p CameraProjector) Project(from types.Setpoint, target types.Location) (types.Setpoint, error) {
	if !inUnitRange(target.X) || !inUnitRange(target.Y) {
		return types.Setpoint{}, errors.WithMessagef(ErrOutOfRange, "(%v, %v)", target.X, target.Y)
	}

	alt := math.Max(from.Alt, 0)
	right := (target.X - 0.5) * 2 * alt * math.Tan(p.HFOVDeg*math.Pi/180/2)
	forward := (0.5 - target.Y) * 2 * alt * math.Tan(p.VFOVDeg*math.Pi/180/2)

	h := headingRad(from.Orientation)
	north := forward*math.Cos(h) - right*math.Sin(h)
	east := forward*math.Sin(h) + right*math.Cos(h)

	to := from
	to.Lat, to.Lon = offset(from.Lat, from.Lon, north, east)
	if err := to.Validate(); err != nil {
		return types.Setpoint{}, err
	}
	if p.MaxStepMetres > 0 {
		if step := groundDistance(from, to); step > p.MaxStepMetres {
			return types.Setpoint{}, errors.WithMessagef(ErrStepTooLong, "%.1f m > %.1f m", step, p.MaxStepMetres)
		}
	}
	return to, nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// headingRad reads the yaw of a yaw-only quaternion, clockwise from north.
func headingRad(q types.Quaternion) float64 {
	return 2 * math.Atan2(q.Z, q.W)
}

const earthRadiusMetres float64 = 6371000

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Move a geo coordinate by north/east metres
func offset(lat, lon, north, east float64) (float64, float64) {
	dlat := north / earthRadiusMetres * (180 / math.Pi)
	dlon := east / (earthRadiusMetres * math.Cos(radians(lat))) * (180 / math.Pi)
	return lat + dlat, lon + dlon
}

// groundDistance is the haversine distance between two setpoints in metres.
// Altitude is ignored.
func groundDistance(a, b types.Setpoint) float64 {
	sinLat := math.Sin(radians(b.Lat-a.Lat) / 2)
	sinLon := math.Sin(radians(b.Lon-a.Lon) / 2)
	h := sinLat*sinLat + math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*sinLon*sinLon
	return 2 * earthRadiusMetres * math.Asin(math.Min(1, math.Sqrt(h)))
}
