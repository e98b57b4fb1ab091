package mission

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/decision"
	"github.com/tiiuae/patrolengine/internal/flight"
	"github.com/tiiuae/patrolengine/internal/types"
)

type FrameSource interface {
	Latest() (frame *types.Frame, ok bool)
}

type LoopConfig struct {
	DeviceID       string
	FramePoll      time.Duration
	CommandTimeout time.Duration
	// FinalMode is requested from the flight stack right before landing.
	// Empty skips the request.
	FinalMode string
	Waypoints []types.Waypoint
	// FinalLook asks the decision engine for one last description after the
	// final waypoint, for the display only.
	FinalLook bool
}

// Loop is the perception cycle: latest frame, decision, dispatch. It ends
// when the mission reaches LANDED.
type Loop struct {
	cfg        LoopConfig
	dispatcher *Dispatcher
	frames     FrameSource
	engine     decision.Engine
	store      SetpointStore
	commander  flight.Commander
	aborted    atomic.Bool
	log        *zap.Logger
}

func NewLoop(cfg LoopConfig, dispatcher *Dispatcher, frames FrameSource, engine decision.Engine, store SetpointStore, commander flight.Commander, log *zap.Logger) (*Loop, error) {
	if err := ValidateWaypoints(cfg.Waypoints); err != nil {
		return nil, err
	}
	if cfg.FramePoll <= 0 {
		cfg.FramePoll = 100 * time.Millisecond
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	return &Loop{
		cfg:        cfg,
		dispatcher: dispatcher,
		frames:     frames,
		engine:     engine,
		store:      store,
		commander:  commander,
		log:        log,
	}, nil
}

// Abort latches the abort signal. It takes effect at the next PATROL tick.
func (l *Loop) Abort() {
	if !l.aborted.Swap(true) {
		l.log.Info("abort requested")
	}
}

func (l *Loop) Aborted() bool {
	return l.aborted.Load()
}

func (l *Loop) Mode() types.MissionMode {
	return l.dispatcher.Mode()
}

// ActiveEmergency is the ledger id of the emergency being handled, 0 if none.
func (l *Loop) ActiveEmergency() int64 {
	return l.dispatcher.ActiveEmergency()
}

func (l *Loop) Run(ctx context.Context, post types.PostFn) error {
	for {
		if ctx.Err() != nil {
			l.log.Info("mission loop shutting down")
			return nil
		}

		mode := l.dispatcher.Mode()
		switch {
		case mode == types.ModeLanded:
			l.log.Info("mission landed")
			return nil
		case mode == types.ModeReturnSequence:
			if err := l.runReturnSequence(ctx, post); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		case mode == types.ModePatrol && l.aborted.Load():
			l.dispatch(ctx, post, Situation{Aborted: true})
			continue
		}

		l.tick(ctx, post, mode)
	}
}

func (l *Loop) tick(ctx context.Context, post types.PostFn, mode types.MissionMode) {
	frame, ok := l.waitFrame(ctx)
	if !ok {
		return
	}

	d, err := l.engine.Decide(ctx, frame, mode)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("decision failed", zap.Stringer("mode", mode), zap.Error(err))
		post(types.CreateMessage(types.MessageDecisionFailed, l.cfg.DeviceID, "*", types.DecisionFailed{
			Mode:  mode,
			Error: err.Error(),
		}))
		_ = sleep(ctx, l.cfg.FramePoll)
		return
	}

	l.dispatch(ctx, post, Situation{
		Decision: &d,
		Frame:    frame,
		Aborted:  l.aborted.Load(),
	})
}

func (l *Loop) dispatch(ctx context.Context, post types.PostFn, s Situation) {
	out, err := l.dispatcher.Dispatch(ctx, s)
	if err != nil {
		l.log.Warn("dispatch rejected", zap.Stringer("mode", l.dispatcher.Mode()), zap.Error(err))
		return
	}
	for _, x := range out {
		post(x)
	}
}

// waitFrame returns the latest frame, polling until the first one arrives.
func (l *Loop) waitFrame(ctx context.Context) (*types.Frame, bool) {
	ticker := time.NewTicker(l.cfg.FramePoll)
	defer ticker.Stop()

	for {
		if frame, ok := l.frames.Latest(); ok {
			return frame, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
	}
}

func (l *Loop) runReturnSequence(ctx context.Context, post types.PostFn) error {
	l.log.Info("return sequence started", zap.Int("waypoints", len(l.cfg.Waypoints)))
	post(l.message(types.MessageDisplayHints, types.DisplayHints{Top: "Returning to base"}))

	for i, wp := range l.cfg.Waypoints {
		l.store.Set(wp.Setpoint())
		post(l.dispatcher.setFlightMode(ctx, l.dispatcher.offboardMode))
		l.log.Info("waypoint", zap.Int("index", i+1), zap.String("name", wp.Name), zap.Duration("settle", wp.Settle))

		if err := sleep(ctx, wp.Settle); err != nil {
			return errors.WithMessagef(err, "return sequence interrupted at waypoint %d", i+1)
		}
	}

	if l.cfg.FinalLook {
		l.finalLook(ctx, post)
	} else {
		post(l.message(types.MessageDisplayHints, types.DisplayHints{}))
	}

	l.dispatch(ctx, post, Situation{SequenceComplete: true})
	if l.dispatcher.Mode() != types.ModeLanded {
		return errors.WithMessage(ErrIllegalTransition, "return sequence did not land")
	}

	if l.cfg.FinalMode != "" {
		post(l.dispatcher.setFlightMode(ctx, l.cfg.FinalMode))
	}
	post(l.land(ctx))

	return nil
}

func (l *Loop) finalLook(ctx context.Context, post types.PostFn) {
	frame, ok := l.frames.Latest()
	if !ok {
		return
	}
	d, err := l.engine.Decide(ctx, frame, types.ModePatrol)
	if err != nil {
		l.log.Debug("final look failed", zap.Error(err))
		post(l.message(types.MessageDisplayHints, types.DisplayHints{}))
		return
	}
	post(l.message(types.MessageDisplayHints, types.DisplayHints{Bottom: d.Summary}))
}

func (l *Loop) land(ctx context.Context) types.Message {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommandTimeout)
	defer cancel()

	cmd := types.FlightCommand{Command: "land"}
	if err := l.commander.Land(ctx); err != nil {
		l.log.Error("land failed", zap.Error(err))
		cmd.Error = err.Error()
	}
	return l.message(types.MessageFlightCommand, cmd)
}

func (l *Loop) message(messageType string, msg interface{}) types.Message {
	return types.CreateMessage(messageType, l.cfg.DeviceID, "*", msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
