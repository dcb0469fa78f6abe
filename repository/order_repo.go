package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

func (s *Store) CreateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// UpsertOrder writes an order, keeping the existing row when one with
// the same id already exists (last write wins on the mutable columns).
func (s *Store) UpsertOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payment_id", "buyer_email", "shipping_details", "cart", "updated_at"}),
	}).Create(order).Error
}

func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LatestOrderByPaymentID resolves the newest order carrying the given
// provider payment id. Used by the webhook fallback path while the
// checkout request that creates the order may still be in flight.
func (s *Store) LatestOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

// TransitionOrderStatus applies a manual or pipeline status change,
// enforcing the monotonic lifecycle with the disputed/refunded escapes.
func (s *Store) TransitionOrderStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}
	if err := s.db.WithContext(ctx).Model(order).Update("status", to).Error; err != nil {
		return nil, err
	}
	order.Status = to
	return order, nil
}
