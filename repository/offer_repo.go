package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

var (
	ErrOfferNotFound = errors.New("offer not found")
	ErrOfferLimit    = errors.New("offer limit reached")
)

func (s *Store) CreateOffer(ctx context.Context, offer *model.Offer) error {
	return s.db.WithContext(ctx).Create(offer).Error
}

// CreateOfferCapped places an offer unless the buyer already has
// maxPerBook offers on the book. A transaction-scoped advisory lock on
// (buyer, book) serializes concurrent creates, so the count cannot go
// stale between check and insert.
func (s *Store) CreateOfferCapped(ctx context.Context, offer *model.Offer, maxPerBook int64) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.db.WithContext(ctx).
			Exec("SELECT pg_advisory_xact_lock(hashtext(?))", offer.BuyerID+":"+offer.BookID).Error; err != nil {
			return err
		}
		n, err := tx.CountBuyerOffers(ctx, offer.BuyerID, offer.BookID)
		if err != nil {
			return err
		}
		if n >= maxPerBook {
			return ErrOfferLimit
		}
		return tx.CreateOffer(ctx, offer)
	})
}

func (s *Store) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	var offer model.Offer
	err := s.db.WithContext(ctx).First(&offer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// CountBuyerOffers counts how many offers a buyer has placed on one
// book, counter-offers excluded (those are seller-authored).
func (s *Store) CountBuyerOffers(ctx context.Context, buyerID, bookID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Offer{}).
		Where("buyer_id = ? AND book_id = ? AND is_counter_offer = false", buyerID, bookID).
		Count(&n).Error
	return n, err
}

func (s *Store) UpdateOfferStatus(ctx context.Context, id string, status model.OfferStatus) error {
	return s.db.WithContext(ctx).Model(&model.Offer{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// CounterOffer flips the original to countered and creates the linked
// counter in one transaction.
func (s *Store) CounterOffer(ctx context.Context, original *model.Offer, counter *model.Offer) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.UpdateOfferStatus(ctx, original.ID, model.OfferCountered); err != nil {
			return err
		}
		return tx.CreateOffer(ctx, counter)
	})
}
