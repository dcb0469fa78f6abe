package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

// Store wraps the gorm handle with the marketplace's data access. All
// methods are safe to call on a transaction-bound Store obtained from
// WithTx.
type Store struct {
	db *gorm.DB

	// OutboxMaxAttempts is the retry budget before an entry moves
	// to the DLQ.
	OutboxMaxAttempts int
}

func NewStore(db *gorm.DB, outboxMaxAttempts int) *Store {
	return &Store{db: db, OutboxMaxAttempts: outboxMaxAttempts}
}

// Migrate creates or updates every table the service owns.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&model.Order{},
		&model.Offer{},
		&model.OutboxEntry{},
		&model.DeadLetterEntry{},
		&model.ProcessedWebhookEvent{},
		&model.StripeEventRecord{},
	)
}

// WithTx runs fn inside one database transaction. The Store handed to
// fn is bound to that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, OutboxMaxAttempts: s.OutboxMaxAttempts})
	})
}
