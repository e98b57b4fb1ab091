// Package flight talks to the flight stack: setpoint stream, flight mode
// requests and landing.
package flight

import (
	"context"

	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

// Commander is the flight command interface. Calls are fire-and-forget:
// success means the command was handed to the flight stack, not that it
// was carried out.
type Commander interface {
	PublishSetpoint(ctx context.Context, sp types.Setpoint) error
	SetFlightMode(ctx context.Context, mode string) error
	Land(ctx context.Context) error
}

// LogCommander only logs commands. Used for dry runs without a flight stack.
type LogCommander struct {
	log *zap.Logger
}

func NewLogCommander(log *zap.Logger) *LogCommander {
	return &LogCommander{log}
}

func (c *LogCommander) PublishSetpoint(ctx context.Context, sp types.Setpoint) error {
	c.log.Debug("setpoint",
		zap.Float64("lat", sp.Lat),
		zap.Float64("lon", sp.Lon),
		zap.Float64("alt", sp.Alt),
		zap.Time("stamp", sp.Stamp))
	return nil
}

func (c *LogCommander) SetFlightMode(ctx context.Context, mode string) error {
	c.log.Info("set flight mode", zap.String("mode", mode))
	return nil
}

func (c *LogCommander) Land(ctx context.Context) error {
	c.log.Info("land")
	return nil
}
