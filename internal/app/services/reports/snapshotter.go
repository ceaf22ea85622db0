package reports

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/delivergo/storefront/internal/app/system"
	"github.com/delivergo/storefront/pkg/logger"
)

var _ system.Service = (*Snapshotter)(nil)

// Snapshotter records yesterday's sales snapshot on a cron schedule. The
// default schedule fires shortly after midnight UTC.
type Snapshotter struct {
	service  *Service
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSnapshotter creates a lifecycle-managed snapshot runner. An empty
// schedule uses the default.
func NewSnapshotter(service *Service, schedule string, log *logger.Logger) *Snapshotter {
	if schedule == "" {
		schedule = "10 0 * * *"
	}
	if log == nil {
		log = logger.NewDefault("reports-snapshotter")
	}
	return &Snapshotter{
		service:  service,
		schedule: schedule,
		log:      log,
	}
}

func (s *Snapshotter) Name() string { return "reports-snapshotter" }

func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if err := s.service.Snapshot(runCtx, yesterday); err != nil {
			s.log.WithError(err).Error("daily snapshot failed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("reports snapshotter started")
	return nil
}

func (s *Snapshotter) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	stopped := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("reports snapshotter stopped")
	return nil
}
