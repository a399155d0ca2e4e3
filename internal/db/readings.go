package db

import (
	"context"
	"fmt"
	"time"

	"energyinsight/internal/energy"
)

const insertBatchSize = 500

// ReadingsBetween returns the user's readings with start <= timestamp <= end,
// oldest first.
func (s *Store) ReadingsBetween(ctx context.Context, userID uint, start, end time.Time) ([]energy.Reading, error) {
	var rows []EnergyReading
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, start, end).
		Order("timestamp").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}

	out := make([]energy.Reading, len(rows))
	for i, r := range rows {
		out[i] = r.ToReading()
	}
	return out, nil
}

// SaveReadings inserts readings in batches inside one transaction.
func (s *Store) SaveReadings(ctx context.Context, readings []energy.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]EnergyReading, len(readings))
	for i, r := range readings {
		rows[i] = readingRow(r)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}

// CountReadings returns how many readings the user owns.
func (s *Store) CountReadings(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&EnergyReading{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}
