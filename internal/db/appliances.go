package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"energyinsight/internal/energy"
)

// AppliancesFor returns the user's catalogue, or the default catalogue when
// the user has none stored.
func (s *Store) AppliancesFor(ctx context.Context, userID uint) ([]energy.Appliance, error) {
	var rows []Appliance
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query appliances: %w", err)
	}
	if len(rows) == 0 {
		return energy.DefaultAppliances(), nil
	}
	out := make([]energy.Appliance, len(rows))
	for i, r := range rows {
		out[i] = r.toAppliance()
	}
	return out, nil
}

// ReplaceAppliances swaps the user's catalogue for items.
func (s *Store) ReplaceAppliances(ctx context.Context, userID uint, items []energy.Appliance) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Appliance{}).Error; err != nil {
			return fmt.Errorf("clear appliances: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]Appliance, len(items))
		for i, a := range items {
			rows[i] = applianceRow(userID, a)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert appliances: %w", err)
		}
		return nil
	})
}
