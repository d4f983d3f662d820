package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/neilb14/users-service/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const probeTimeout = 5 * time.Second

// Store is what the health probe inspects
type Store interface {
	Ping(ctx context.Context) error
	CountUsers(ctx context.Context) (int, error)
}

// Scheduler runs periodic background jobs
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	log      *logrus.Logger
	schedule string
}

func NewScheduler(cfg *config.Config, store Store, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		store:    store,
		log:      log,
		schedule: cfg.HealthCheckSchedule,
	}
}

// Start registers the storage probe and starts the cron loop. An empty
// schedule leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.log.Info("Health check disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.checkStorage); err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Infof("Health check scheduled: %s", s.schedule)
	return nil
}

// Stop waits for running jobs to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) checkStorage() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Errorf("Storage health check failed: %v", err)
		return
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		s.log.Errorf("Failed to count users: %v", err)
		return
	}
	s.log.WithField("users", count).Info("Storage healthy")
}
