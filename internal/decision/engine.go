// Package decision is the boundary to the perception and decision engine.
// The mission loop only sees the Engine interface; what sits behind it is
// replaceable.
package decision

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tiiuae/patrolengine/internal/types"
)

var (
	ErrTimeout         = errors.New("decision engine timed out")
	ErrUnsafeDecision  = errors.New("unsafe decision")
	ErrInvalidDecision = errors.New("invalid decision")
)

type Engine interface {
	Decide(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error)

func (f EngineFunc) Decide(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error) {
	return f(ctx, frame, mode)
}

type timeoutEngine struct {
	next    Engine
	timeout time.Duration
}

// WithTimeout bounds every call to next. A call still running when the
// deadline passes is abandoned and ErrTimeout is returned.
func WithTimeout(next Engine, timeout time.Duration) Engine {
	return &timeoutEngine{next, timeout}
}

type result struct {
	decision types.Decision
	err      error
}

func (e *timeoutEngine) Decide(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		d, err := e.next.Decide(ctx, frame, mode)
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.Decision{}, errors.WithMessage(ErrTimeout, r.err.Error())
		}
		return r.decision, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.Decision{}, errors.WithMessagef(ErrTimeout, "after %v", e.timeout)
		}
		return types.Decision{}, ctx.Err()
	}
}

type guardedEngine struct {
	next     Engine
	checkers []Checker
}

// Guarded screens the free text of every decision returned by next, then
// hands it to each checker in turn. It fails closed with ErrUnsafeDecision.
func Guarded(next Engine, checkers ...Checker) Engine {
	return &guardedEngine{next, checkers}
}

func (e *guardedEngine) Decide(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error) {
	d, err := e.next.Decide(ctx, frame, mode)
	if err != nil {
		return d, err
	}
	if err := Screen(d); err != nil {
		return types.Decision{}, err
	}

	text := strings.Join(decisionText(d), "\n")
	for _, c := range e.checkers {
		if err := c.Check(ctx, text); err != nil {
			if ctx.Err() != nil {
				return types.Decision{}, ctx.Err()
			}
			return types.Decision{}, err
		}
	}
	return d, nil
}
