// Package mission owns the mission state machine: the mode dispatcher, the
// per-mode handlers, the mission loop and the scripted return sequence.
package mission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/flight"
	"github.com/tiiuae/patrolengine/internal/ledger"
	"github.com/tiiuae/patrolengine/internal/types"
)

var ErrOutOfRange = flight.ErrOutOfRange

type SetpointStore interface {
	Get() types.Setpoint
	Set(sp types.Setpoint)
}

type EmergencyLedger interface {
	Record(e ledger.NewEmergency) (int64, error)
	Resolve(id int64) error
}

// Dispatcher holds the one authoritative mission mode. Only Dispatch moves
// it, and only along the transition table.
type Dispatcher struct {
	mu              sync.Mutex
	mode            types.MissionMode
	activeEmergency int64
	pending         *types.EmergencyDetails

	handlers    map[types.MissionMode]Handler
	store       SetpointStore
	emergencies EmergencyLedger
	commander   flight.Commander
	projector   flight.Projector

	deviceID       string
	offboardMode   string
	commandTimeout time.Duration
	log            *zap.Logger
}

type DispatcherOption func(*Dispatcher)

func WithHandlers(h map[types.MissionMode]Handler) DispatcherOption {
	return func(d *Dispatcher) { d.handlers = h }
}

func WithInitialMode(m types.MissionMode) DispatcherOption {
	return func(d *Dispatcher) { d.mode = m }
}

func WithDeviceID(id string) DispatcherOption {
	return func(d *Dispatcher) { d.deviceID = id }
}

func WithOffboardMode(mode string) DispatcherOption {
	return func(d *Dispatcher) { d.offboardMode = mode }
}

func WithCommandTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.commandTimeout = t }
}

func WithLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func NewDispatcher(store SetpointStore, emergencies EmergencyLedger, commander flight.Commander, projector flight.Projector, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		mode:           types.ModePatrol,
		handlers:       DefaultHandlers(),
		store:          store,
		emergencies:    emergencies,
		commander:      commander,
		projector:      projector,
		offboardMode:   "OFFBOARD",
		commandTimeout: 2 * time.Second,
		log:            zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}

	if !d.mode.Valid() {
		return nil, errors.WithMessagef(types.ErrUnknownMode, "initial mode %d", d.mode)
	}
	for _, m := range types.MissionModes() {
		if d.handlers[m] == nil {
			return nil, errors.WithMessagef(types.ErrUnknownMode, "no handler for %v", m)
		}
	}
	for m := range d.handlers {
		if !m.Valid() {
			return nil, errors.WithMessagef(types.ErrUnknownMode, "handler for mode %d", m)
		}
	}

	return d, nil
}

func (d *Dispatcher) Mode() types.MissionMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Dispatcher) ActiveEmergency() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeEmergency
}

// Dispatch runs the handler for the current mode and applies its outcome.
// A rejected outcome leaves mode, setpoint and ledger untouched. The
// returned messages are for the bus.
func (d *Dispatcher) Dispatch(ctx context.Context, s Situation) ([]types.Message, error) {
	reposition, msgs, err := d.apply(s)
	if err != nil {
		return nil, err
	}
	if !reposition {
		return msgs, nil
	}
	// the flight stack is commanded outside the lock so Mode stays readable
	return append([]types.Message{d.setFlightMode(ctx, d.offboardMode)}, msgs...), nil
}

func (d *Dispatcher) apply(s Situation) (bool, []types.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.mode
	s.ActiveEmergency = d.activeEmergency
	s.Pending = d.pending
	out := d.handlers[current].Handle(s)

	next := current
	if out.Next != nil {
		if err := checkTransition(current, *out.Next); err != nil {
			return false, nil, err
		}
		if err := checkTrigger(current, *out.Next, s); err != nil {
			return false, nil, err
		}
		next = *out.Next
	}

	var target *types.Setpoint
	if out.MoveTo != nil {
		sp, err := d.project(*out.MoveTo)
		if err != nil {
			return false, nil, err
		}
		target = &sp
	}

	var record *ledger.NewEmergency
	if out.RecordEmergency != nil {
		record = newEmergency(*out.RecordEmergency, s.Frame)
		if err := record.Validate(); err != nil {
			return false, nil, err
		}
	}

	outgoing := make([]types.Message, 0)

	if target != nil {
		d.store.Set(*target)
	}

	if record != nil {
		id, err := d.emergencies.Record(*record)
		if err != nil {
			d.log.Error("could not record emergency", zap.Error(err))
		} else {
			d.activeEmergency = id
			outgoing = append(outgoing, d.message(types.MessageEmergencyRecorded, types.EmergencyRecorded{
				ID:       id,
				Type:     record.Type,
				Location: record.Location,
				Severity: record.Severity,
			}))
		}
	}

	if out.ResolveEmergency && d.activeEmergency != 0 {
		id := d.activeEmergency
		if err := d.emergencies.Resolve(id); err != nil {
			d.log.Error("could not resolve emergency", zap.Int64("id", id), zap.Error(err))
		} else {
			outgoing = append(outgoing, d.message(types.MessageEmergencyResolved, types.EmergencyResolved{ID: id}))
		}
		d.activeEmergency = 0
	}

	if out.Hints != nil {
		outgoing = append(outgoing, d.message(types.MessageDisplayHints, *out.Hints))
	}
	for _, a := range out.Alerts {
		outgoing = append(outgoing, d.message(types.MessageAlert, a))
	}
	if out.Observation != nil {
		outgoing = append(outgoing, d.message(types.MessageObservation, *out.Observation))
	}
	if out.FollowPath {
		d.log.Debug("following patrol path")
	}

	if out.Carry != nil {
		// details that could never be recorded would block every later tick
		if err := newEmergency(*out.Carry, nil).Validate(); err != nil {
			d.log.Warn("discarding emergency details", zap.Error(err))
		} else {
			d.pending = out.Carry
		}
	}
	if next == types.ModePatrol {
		d.pending = nil
	}

	if next != current {
		d.log.Info("mode changed", zap.Stringer("from", current), zap.Stringer("to", next))
		d.mode = next
		outgoing = append(outgoing, d.message(types.MessageModeChanged, types.ModeChanged{From: current, To: next}))
	}

	return target != nil, outgoing, nil
}

func (d *Dispatcher) project(loc types.Location) (types.Setpoint, error) {
	if !(loc.X >= 0 && loc.X <= 1 && loc.Y >= 0 && loc.Y <= 1) {
		return types.Setpoint{}, errors.WithMessagef(ErrOutOfRange, "(%v, %v)", loc.X, loc.Y)
	}
	sp, err := d.projector.Project(d.store.Get(), loc)
	if err != nil {
		return types.Setpoint{}, err
	}
	if err := sp.Validate(); err != nil {
		return types.Setpoint{}, err
	}
	return sp, nil
}

func (d *Dispatcher) setFlightMode(ctx context.Context, mode string) types.Message {
	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	cmd := types.FlightCommand{Command: "set_mode", Mode: mode}
	if err := d.commander.SetFlightMode(ctx, mode); err != nil {
		d.log.Warn("set flight mode failed", zap.String("mode", mode), zap.Error(err))
		cmd.Error = err.Error()
	}
	return d.message(types.MessageFlightCommand, cmd)
}

func (d *Dispatcher) message(messageType string, msg interface{}) types.Message {
	return types.CreateMessage(messageType, d.deviceID, "*", msg)
}

func newEmergency(details types.EmergencyDetails, frame *types.Frame) *ledger.NewEmergency {
	e := &ledger.NewEmergency{
		Type:        details.Type,
		Location:    details.Location,
		Severity:    details.Severity,
		Description: details.Description,
	}
	if e.Description == "" {
		e.Description = fmt.Sprintf("Emergency detected at coordinates (%v, %v) with severity %d",
			details.Location.X, details.Location.Y, details.Severity)
	}
	if frame != nil {
		e.Image = frame.Data
	}
	return e
}
