package model

import "time"

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferDeclined  OfferStatus = "declined"
	OfferCountered OfferStatus = "countered"
	OfferCompleted OfferStatus = "completed"
)

// MaxOffersPerBook caps how many offers one buyer may place on a book.
const MaxOffersPerBook = 2

// Offer is a buyer's proposed price on a book. Only the referenced
// seller may transition a pending offer.
type Offer struct {
	ID             string      `gorm:"primaryKey;size:64" json:"id"`
	BookID         string      `gorm:"size:64;index;not null" json:"bookId"`
	BookTitle      string      `gorm:"size:256" json:"bookTitle"`
	BuyerID        string      `gorm:"size:64;index;not null" json:"buyerId"`
	BuyerEmail     string      `gorm:"size:320" json:"buyerEmail"`
	SellerID       string      `gorm:"size:64;index;not null" json:"sellerId"`
	SellerEmail    string      `gorm:"size:320" json:"sellerEmail"`
	AmountCents    int64       `gorm:"not null" json:"amountCents"`
	Status         OfferStatus `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	IsCounterOffer bool        `gorm:"default:false" json:"isCounterOffer"`
	ParentOfferID  *string     `gorm:"size:64;index" json:"parentOffer,omitempty"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Offer) TableName() string { return "offers" }
