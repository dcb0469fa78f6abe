package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

var ErrEntryNotFound = errors.New("queue entry not found")

// Enqueue appends a side-effect job. Duplicate idempotency keys are
// dropped silently so a replayed enqueue is a no-op.
func (s *Store) Enqueue(ctx context.Context, entry *model.OutboxEntry) error {
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = time.Now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(entry).Error
}

// CreateDeadLetter files a dead-letter row directly, bypassing the
// outbox. Used for operator alerts that have no retryable job.
func (s *Store) CreateDeadLetter(ctx context.Context, entry *model.DeadLetterEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// DueEntries returns unprocessed jobs whose next attempt is due,
// oldest first.
func (s *Store) DueEntries(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	err := s.db.WithContext(ctx).
		Where("processed_at IS NULL AND next_attempt_at <= ?", time.Now()).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *Store) GetEntry(ctx context.Context, id uint) (*model.OutboxEntry, error) {
	var entry model.OutboxEntry
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LeaseEntry pushes an entry's next attempt forward while a consumer
// works on it.
func (s *Store) LeaseEntry(ctx context.Context, id uint, lease time.Duration) error {
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("id = ?", id).
		Update("next_attempt_at", time.Now().Add(lease)).Error
}

func (s *Store) MarkDone(ctx context.Context, id uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("id = ?", id).
		Update("processed_at", now).Error
}

// scheduleFailure applies one failed execution to an entry in memory:
// attempts increments, the cause is recorded, and the entry is either
// rescheduled with exponential backoff or, once the budget is spent,
// converted to the returned dead-letter row.
func scheduleFailure(entry *model.OutboxEntry, cause error, maxAttempts int, baseBackoff time.Duration, now time.Time) *model.DeadLetterEntry {
	entry.Attempts++
	entry.LastError = cause.Error()

	if entry.Attempts >= maxAttempts {
		return &model.DeadLetterEntry{
			Queue:          "outbox",
			Type:           entry.Type,
			Payload:        entry.Payload,
			OrderID:        entry.OrderID,
			IdempotencyKey: entry.IdempotencyKey,
			Reason:         "retry_budget_exhausted",
			Attempts:       entry.Attempts,
			LastError:      entry.LastError,
		}
	}

	entry.NextAttemptAt = now.Add(baseBackoff << (entry.Attempts - 1))
	return nil
}

// requeueEntry converts a dead entry back into an outbox row with a
// fresh retry budget, due immediately.
func requeueEntry(d model.DeadLetterEntry, now time.Time) model.OutboxEntry {
	return model.OutboxEntry{
		Type:           d.Type,
		Payload:        d.Payload,
		OrderID:        d.OrderID,
		IdempotencyKey: d.IdempotencyKey,
		Attempts:       0,
		NextAttemptAt:  now,
	}
}

// FailEntry records one failed execution. Within the retry budget the
// entry is rescheduled with exponential backoff; past it the entry
// moves to the DLQ with its failure reason.
func (s *Store) FailEntry(ctx context.Context, id uint, cause error, baseBackoff time.Duration) error {
	return s.WithTx(ctx, func(tx *Store) error {
		entry, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}

		if dead := scheduleFailure(entry, cause, tx.OutboxMaxAttempts, baseBackoff, time.Now()); dead != nil {
			if err := tx.db.WithContext(ctx).Create(dead).Error; err != nil {
				return err
			}
			return tx.db.WithContext(ctx).Delete(&model.OutboxEntry{}, entry.ID).Error
		}

		return tx.db.WithContext(ctx).Model(entry).Updates(map[string]interface{}{
			"attempts":        entry.Attempts,
			"last_error":      entry.LastError,
			"next_attempt_at": entry.NextAttemptAt,
		}).Error
	})
}

// RetryOutbox makes pending entries due immediately. A zero id retries
// every unprocessed entry.
func (s *Store) RetryOutbox(ctx context.Context, id uint) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("processed_at IS NULL")
	if id != 0 {
		q = q.Where("id = ?", id)
	}
	res := q.Update("next_attempt_at", time.Now())
	return res.RowsAffected, res.Error
}

func (s *Store) ListOutbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (s *Store) ListDLQ(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	var entries []model.DeadLetterEntry
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// RequeueFromDLQ moves dead entries back to the outbox with a fresh
// retry budget (attempts reset to zero). A zero id requeues all.
func (s *Store) RequeueFromDLQ(ctx context.Context, id uint) (int64, error) {
	var moved int64
	err := s.WithTx(ctx, func(tx *Store) error {
		var dead []model.DeadLetterEntry
		q := tx.db.WithContext(ctx)
		if id != 0 {
			q = q.Where("id = ?", id)
		}
		if err := q.Find(&dead).Error; err != nil {
			return err
		}
		if id != 0 && len(dead) == 0 {
			return ErrEntryNotFound
		}
		for _, d := range dead {
			entry := requeueEntry(d, time.Now())
			if err := tx.Enqueue(ctx, &entry); err != nil {
				return err
			}
			if err := tx.db.WithContext(ctx).Delete(&model.DeadLetterEntry{}, d.ID).Error; err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	return moved, err
}

// PurgeDLQ permanently removes dead entries. A zero id purges all.
func (s *Store) PurgeDLQ(ctx context.Context, id uint) (int64, error) {
	q := s.db.WithContext(ctx)
	if id != 0 {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&model.DeadLetterEntry{})
	return res.RowsAffected, res.Error
}

type QueueCounts struct {
	OutboxPending int64 `json:"outboxPending"`
	OutboxDone    int64 `json:"outboxDone"`
	DLQ           int64 `json:"dlq"`
	StripeEvents  int64 `json:"stripeEvents"`
}

func (s *Store) CountQueues(ctx context.Context) (QueueCounts, error) {
	var c QueueCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.OutboxEntry{}).Where("processed_at IS NULL").Count(&c.OutboxPending).Error; err != nil {
		return c, err
	}
	if err := db.Model(&model.OutboxEntry{}).Where("processed_at IS NOT NULL").Count(&c.OutboxDone).Error; err != nil {
		return c, err
	}
	if err := db.Model(&model.DeadLetterEntry{}).Count(&c.DLQ).Error; err != nil {
		return c, err
	}
	if err := db.Model(&model.StripeEventRecord{}).Count(&c.StripeEvents).Error; err != nil {
		return c, err
	}
	return c, nil
}
