package db

import (
	"context"
	"time"

	"energyinsight/internal/logger"
)

const retentionInterval = 24 * time.Hour

// RetentionResult counts the rows removed by one pass.
type RetentionResult struct {
	Tokens   int64
	Readings int64
}

// RetentionCutoff is the oldest reading timestamp kept when readings are
// retained for days. The zero time means nothing is pruned.
func RetentionCutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// RunRetentionOnce deletes expired access tokens and, when retentionDays is
// positive, readings older than the cutoff.
func (s *Store) RunRetentionOnce(ctx context.Context, retentionDays int) (RetentionResult, error) {
	var res RetentionResult
	now := s.now()

	tx := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&AccessToken{})
	if tx.Error != nil {
		return res, tx.Error
	}
	res.Tokens = tx.RowsAffected

	cutoff := RetentionCutoff(now, retentionDays)
	if cutoff.IsZero() {
		return res, nil
	}
	tx = s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&EnergyReading{})
	if tx.Error != nil {
		return res, tx.Error
	}
	res.Readings = tx.RowsAffected
	return res, nil
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day, until ctx ends.
func (s *Store) StartRetentionWorker(ctx context.Context, retentionDays int) {
	log := logger.Named("retention")
	run := func() {
		res, err := s.RunRetentionOnce(ctx, retentionDays)
		if err != nil {
			if ctx.Err() == nil {
				log.Error(ctx, "retention cleanup failed", logger.Error(err))
			}
			return
		}
		log.Info(ctx, "retention cleanup done",
			logger.Any("tokens_deleted", res.Tokens),
			logger.Any("readings_deleted", res.Readings))
	}

	go func() {
		run()

		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
