package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (int64, error)
}

type breachObserver interface {
	ObserveSLABreaches(count int64)
}

// SLASweeper periodically marks open questions whose answer deadline has
// passed. The sweep keeps breach flags current for projects with no read
// or write traffic.
type SLASweeper struct {
	questions overdueSweeper
	metrics   breachObserver
	logger    *zap.Logger
	cron      *cron.Cron
	spec      string
}

// NewSLASweeper constructs SLASweeper. metrics may be nil.
func NewSLASweeper(questions overdueSweeper, metrics breachObserver, spec string, logger *zap.Logger) *SLASweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec == "" {
		spec = "@every 5m"
	}
	return &SLASweeper{
		questions: questions,
		metrics:   metrics,
		logger:    logger,
		spec:      spec,
	}
}

// Start schedules the sweep and runs it until Stop is called.
func (s *SLASweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.Run); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sla sweeper started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SLASweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Run executes a single sweep.
func (s *SLASweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	marked, err := s.questions.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("sla sweep failed", zap.Error(err))
		return
	}
	if marked > 0 && s.metrics != nil {
		s.metrics.ObserveSLABreaches(marked)
	}
}
