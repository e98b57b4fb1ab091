package mission

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/tiiuae/patrolengine/internal/setpoint"
	"github.com/tiiuae/patrolengine/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type commanderCall struct {
	Command string
	Mode    string
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []commanderCall
	err   error
}

func (c *fakeCommander) PublishSetpoint(ctx context.Context, sp types.Setpoint) error {
	return nil
}

func (c *fakeCommander) SetFlightMode(ctx context.Context, mode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, commanderCall{"set_mode", mode})
	return c.err
}

func (c *fakeCommander) Land(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, commanderCall{"land", ""})
	return c.err
}

func (c *fakeCommander) Calls() []commanderCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]commanderCall(nil), c.calls...)
}

// blockingCommander holds SetFlightMode until release is closed.
type blockingCommander struct {
	fakeCommander
	entered chan struct{}
	release chan struct{}
}

func (c *blockingCommander) SetFlightMode(ctx context.Context, mode string) error {
	close(c.entered)
	<-c.release
	return c.fakeCommander.SetFlightMode(ctx, mode)
}

// shiftProjector moves the setpoint north by X degrees and east by Y degrees.
type shiftProjector struct{}

func (shiftProjector) Project(from types.Setpoint, target types.Location) (types.Setpoint, error) {
	to := from
	to.Lat += target.X
	to.Lon += target.Y
	return to, nil
}

type recordingStore struct {
	*setpoint.Store
	mu  sync.Mutex
	set []types.Setpoint
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: setpoint.NewStore()}
}

func (s *recordingStore) Set(sp types.Setpoint) {
	s.mu.Lock()
	s.set = append(s.set, sp)
	s.mu.Unlock()
	s.Store.Set(sp)
}

func (s *recordingStore) History() []types.Setpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Setpoint(nil), s.set...)
}

type postSink struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (p *postSink) Post(msg types.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *postSink) OfType(messageType string) []types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Message, 0)
	for _, m := range p.msgs {
		if m.MessageType == messageType {
			out = append(out, m)
		}
	}
	return out
}

func (p *postSink) ModeChanges() []types.ModeChanged {
	out := make([]types.ModeChanged, 0)
	for _, m := range p.OfType(types.MessageModeChanged) {
		out = append(out, m.Message.(types.ModeChanged))
	}
	return out
}

type staticFrames struct {
	mu    sync.Mutex
	frame *types.Frame
}

func (f *staticFrames) Latest() (*types.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.frame != nil
}

func (f *staticFrames) Put(frame *types.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
}

func decide(next *types.MissionMode, actions ...types.Action) *types.Decision {
	return &types.Decision{NextMode: next, Actions: actions}
}
