// Package framebuffer is the single-slot handoff between the frame source
// and the mission loop. The newest frame always wins; nothing is queued.
package framebuffer

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Stats counts frames since start. Overwritten frames were replaced before
// the mission loop read them.
type Stats struct {
	Received    uint64 `json:"received"`
	Malformed   uint64 `json:"malformed"`
	Overwritten uint64 `json:"overwritten"`
}

type Buffer struct {
	mu       sync.Mutex
	frame    *types.Frame
	consumed bool
	seq      uint64

	received    atomic.Uint64
	malformed   atomic.Uint64
	overwritten atomic.Uint64

	log *zap.Logger
}

func New(log *zap.Logger) *Buffer {
	return &Buffer{log: log}
}

// Put decodes the image header and stores the frame. A frame that does not
// decode is dropped and the previous frame stays current.
func (b *Buffer) Put(data []byte) error {
	b.received.Add(1)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		b.malformed.Add(1)
		b.log.Debug("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
		return errors.WithMessage(ErrMalformedFrame, err.Error())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame != nil && !b.consumed {
		b.overwritten.Add(1)
	}
	b.seq++
	b.frame = &types.Frame{
		Data:       data,
		Width:      cfg.Width,
		Height:     cfg.Height,
		ReceivedAt: time.Now(),
		Seq:        b.seq,
	}
	b.consumed = false

	return nil
}

// Latest returns the most recent good frame. The same frame is returned
// again until a newer one arrives. ok is false until the first frame.
func (b *Buffer) Latest() (*types.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame == nil {
		return nil, false
	}
	b.consumed = true
	return b.frame, true
}

func (b *Buffer) Stats() Stats {
	return Stats{
		Received:    b.received.Load(),
		Malformed:   b.malformed.Load(),
		Overwritten: b.overwritten.Load(),
	}
}
