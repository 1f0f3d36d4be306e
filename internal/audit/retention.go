package audit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	defaultDeleteBatchSize   = 5000
	maxDeleteBatchesPerRun   = 2000
)

// RetentionCleaner periodically deletes audit events older than the
// configured retention window.
type RetentionCleaner struct {
	db            *gorm.DB
	interval      time.Duration
	batchSize     int
	retentionDays int
}

// NewRetentionCleaner builds a cleaner that keeps retentionDays of events.
// A non-positive retention disables cleanup and returns nil.
func NewRetentionCleaner(db *gorm.DB, retentionDays int) *RetentionCleaner {
	if db == nil || retentionDays <= 0 {
		return nil
	}
	return &RetentionCleaner{
		db:            db,
		interval:      defaultRetentionInterval,
		batchSize:     defaultDeleteBatchSize,
		retentionDays: retentionDays,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("audit retention cleaner started (interval=%s retention_days=%d)", c.interval, c.retentionDays)
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.cleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (c *RetentionCleaner) cleanupOnce(ctx context.Context) {
	if c == nil || c.db == nil {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -c.retentionDays)

	deletedTotal := int64(0)
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return
		}
		n, errDelete := c.deleteBatch(ctx, cutoff)
		if errDelete != nil {
			log.WithError(errDelete).Warn("audit retention cleaner: delete batch failed")
			break
		}
		if n <= 0 {
			break
		}
		deletedTotal += n
	}

	if deletedTotal > 0 {
		log.Infof("audit retention cleaner: deleted %d events (cutoff=%s)", deletedTotal, cutoff.Format(time.RFC3339))
	}
}

func (c *RetentionCleaner) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultDeleteBatchSize
	}

	// A limited subquery keeps each delete short and avoids table locks.
	res := c.db.WithContext(ctx).Exec(`
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, cutoff, limit)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
