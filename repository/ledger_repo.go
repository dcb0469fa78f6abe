package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

// ClaimEvent inserts the provider event id into the dedup ledger.
// Returns true when this call claimed the event, false when another
// delivery already did. The unique index makes concurrent duplicate
// deliveries race-safe: exactly one insert wins.
func (s *Store) ClaimEvent(ctx context.Context, provider, eventID string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(&model.ProcessedWebhookEvent{Provider: provider, EventID: eventID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasProcessed reports whether an event id is already in the ledger.
func (s *Store) HasProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.ProcessedWebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&n).Error
	return n > 0, err
}
