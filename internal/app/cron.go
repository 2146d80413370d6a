package app

import (
	"context"
	"time"

	"github.com/mx-space/diary/internal/config"
	pkgcron "github.com/mx-space/diary/internal/pkg/cron"
)

const searchReindexInterval = 24 * time.Hour

// registerCronJobs registers the scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, svc *Services, cfg *config.AppConfig) {
	if cfg.Backup.Enable {
		sched.Register(svc.Backup.Job(cfg.BackupInterval()))
	}

	sched.Register(pkgcron.Job{
		Name:        "search_reindex",
		Description: "push the full situation library to meilisearch",
		Interval:    searchReindexInterval,
		Fn: func(ctx context.Context) error {
			return svc.Search.Reindex(ctx, svc.Situations)
		},
	})
}
