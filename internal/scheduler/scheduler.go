package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/prepcal/prepcal/pkg/sync"
)

// Scheduler runs the sync engine on a fixed interval. Overlapping runs are
// prevented by the engine's own serialization, so a slow cycle simply
// delays the next one.
type Scheduler struct {
	engine   *sync.Engine
	interval time.Duration
	cron     *cron.Cron
}

func New(engine *sync.Engine, intervalMinutes int) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: time.Duration(intervalMinutes) * time.Minute,
		cron:     cron.New(),
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		stats, err := s.engine.Run(context.Background())
		if err != nil {
			if errors.Is(err, sync.ErrNoCredentials) {
				return
			}
			log.Errorf("Scheduled sync failed: %v", err)
			return
		}
		log.Debugf("Scheduled sync finished: created=%d updated=%d deleted=%d",
			stats.Created, stats.Updated, stats.Deleted)
	})
	if err != nil {
		return fmt.Errorf("could not schedule sync job: %w", err)
	}
	s.cron.Start()
	log.Infof("Background sync scheduled every %s", s.interval)
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
