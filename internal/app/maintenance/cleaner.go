// Package maintenance runs the scheduled housekeeping jobs: expired cache
// entries and aged audit/login logs.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/logger"
)

// Cleaner schedules periodic purges.
type Cleaner struct {
	cron      *cron.Cron
	store     *cache.DatabaseStore
	audit     *services.AuditService
	retention time.Duration
	log       *zap.Logger
}

// NewCleaner constructs a Cleaner. store may be nil when Redis handles expiry
// natively; audit is required.
func NewCleaner(store *cache.DatabaseStore, audit *services.AuditService, retention time.Duration) (*Cleaner, error) {
	if audit == nil {
		return nil, errors.New("maintenance: audit service is required")
	}
	return &Cleaner{
		cron:      cron.New(),
		store:     store,
		audit:     audit,
		retention: retention,
		log:       logger.WithModule("maintenance"),
	}, nil
}

// Start registers the purge job under the cron schedule and begins running.
func (c *Cleaner) Start(schedule string) error {
	if _, err := c.cron.AddFunc(schedule, c.runOnce); err != nil {
		return err
	}
	c.cron.Start()
	c.log.Info("maintenance cleaner started", zap.String("schedule", schedule))
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *Cleaner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if c.store != nil {
		purged, err := c.store.PurgeExpired(ctx)
		if err != nil {
			c.log.Warn("cache purge failed", zap.Error(err))
		} else if purged > 0 {
			c.log.Info("purged expired cache entries", zap.Int64("rows", purged))
		}
	}

	pruned, err := c.audit.Prune(ctx, c.retention)
	if err != nil {
		c.log.Warn("audit prune failed", zap.Error(err))
	} else if pruned > 0 {
		c.log.Info("pruned aged audit entries", zap.Int64("rows", pruned))
	}
}
