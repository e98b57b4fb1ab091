// Package reports posts a periodic summary of the emergency ledger.
package reports

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

type Summarizer interface {
	Summary() types.LedgerReport
}

type Scheduler struct {
	schedule string
	ledger   Summarizer
	deviceID string
	log      *zap.Logger
}

// NewScheduler accepts standard five field cron specs and descriptors such
// as "@every 1m".
func NewScheduler(schedule string, ledger Summarizer, deviceID string, log *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errors.WithMessagef(err, "invalid report schedule '%s'", schedule)
	}
	return &Scheduler{schedule, ledger, deviceID, log}, nil
}

func (s *Scheduler) Run(ctx context.Context, post types.PostFn) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.Report(post)
	})
	if err != nil {
		return errors.WithMessage(err, "Error scheduling ledger report")
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("report scheduler stopped")
	return nil
}

// Report posts the current ledger summary right away.
func (s *Scheduler) Report(post types.PostFn) {
	report := s.ledger.Summary()
	s.log.Debug("ledger report", zap.Int("total", report.Total), zap.Int("in_progress", report.InProgress))
	post(types.CreateMessage(types.MessageLedgerReport, s.deviceID, "*", report))
}
