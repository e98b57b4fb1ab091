// Package navigation streams the current setpoint to the flight stack at a
// fixed rate, independent of the mission loop.
package navigation

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/flight"
	"github.com/tiiuae/patrolengine/internal/types"
)

type SetpointSource interface {
	Get() types.Setpoint
}

type Stats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// Publisher sends the latest setpoint every tick. A failed send is logged
// and never retried; the next tick sends whatever is current then.
type Publisher struct {
	source      SetpointSource
	commander   flight.Commander
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	log         *zap.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewPublisher(source SetpointSource, commander flight.Commander, rateHz float64, sendTimeout time.Duration, log *zap.Logger) *Publisher {
	if rateHz <= 0 {
		rateHz = 10
	}
	interval := time.Duration(float64(time.Second) / rateHz)
	if sendTimeout <= 0 || sendTimeout > interval {
		sendTimeout = interval
	}
	return &Publisher{
		source:      source,
		commander:   commander,
		interval:    interval,
		sendTimeout: sendTimeout,
		now:         time.Now,
		log:         log,
	}
}

func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("setpoint publisher shutting down", zap.Uint64("sent", p.sent.Load()), zap.Uint64("failed", p.failed.Load()))
			return nil
		case <-ticker.C:
			p.publish(ctx)
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	sp := p.source.Get()
	sp.Stamp = p.now()

	ctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	if err := p.commander.PublishSetpoint(ctx, sp); err != nil {
		p.failed.Add(1)
		p.log.Warn("setpoint send failed", zap.Error(err))
		return
	}
	p.sent.Add(1)
}

func (p *Publisher) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Failed: p.failed.Load()}
}
