package cronjob

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named periodic jobs. Specs include a seconds field.
type Scheduler struct {
	c *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{c: cron.New(cron.WithSeconds())}
}

// Add registers fn under spec. A panicking job is logged and skipped.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	_, err := s.c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[cron] job=%s panic=%v", name, r)
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("failed to create cron job %s: %w", name, err)
	}
	log.Printf("[cron] job=%s schedule=%q registered", name, spec)
	return nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	log.Println("[cron] scheduler started")
}

// Stop prevents new runs and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}
