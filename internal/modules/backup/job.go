package backup

import (
	"context"
	"time"

	"github.com/mx-space/diary/internal/pkg/cron"
)

// Job wraps Create for the scheduler.
func (s *Service) Job(interval time.Duration) cron.Job {
	return cron.Job{
		Name:        "backup",
		Description: "dump the document store to the backups directory",
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			_, err := s.Create(ctx)
			return err
		},
	}
}
