package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

// RecordStripeEvent stores a verified event for the replay table.
// Re-delivery of an already stored event id is a no-op.
func (s *Store) RecordStripeEvent(ctx context.Context, rec *model.StripeEventRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(rec).Error
}

func (s *Store) MarkStripeEventProcessed(ctx context.Context, eventID string) error {
	return s.db.WithContext(ctx).Model(&model.StripeEventRecord{}).
		Where("event_id = ?", eventID).
		Update("processed", true).Error
}

func (s *Store) GetStripeEvent(ctx context.Context, id uint) (*model.StripeEventRecord, error) {
	var rec model.StripeEventRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListStripeEvents(ctx context.Context, limit int) ([]model.StripeEventRecord, error) {
	var recs []model.StripeEventRecord
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// UnprocessedStripeEvents lists events awaiting replay, optionally one
// by id.
func (s *Store) UnprocessedStripeEvents(ctx context.Context, id uint) ([]model.StripeEventRecord, error) {
	var recs []model.StripeEventRecord
	q := s.db.WithContext(ctx).Where("processed = false")
	if id != 0 {
		q = q.Where("id = ?", id)
	}
	err := q.Find(&recs).Error
	return recs, err
}
