package model

import (
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderPaid          OrderStatus = "paid"
	OrderShipped       OrderStatus = "shipped"
	OrderDelivered     OrderStatus = "delivered"
	OrderPaymentFailed OrderStatus = "payment_failed"
	OrderDisputed      OrderStatus = "disputed"
	OrderRefunded      OrderStatus = "refunded"
)

// statusRank orders the happy-path lifecycle. Disputed and refunded sit
// outside the ranking and are reachable from any paid-or-later state.
var statusRank = map[OrderStatus]int{
	OrderPending:   0,
	OrderPaid:      1,
	OrderShipped:   2,
	OrderDelivered: 3,
}

// CanTransition reports whether moving from -> to is a legal order
// status change. Happy-path transitions are monotonic; disputed and
// refunded are escape hatches out of any paid state.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return false
	}
	if to == OrderDisputed || to == OrderRefunded {
		return from != OrderPending && from != OrderPaymentFailed
	}
	if from == OrderDisputed || from == OrderRefunded {
		return false
	}
	if to == OrderPaymentFailed {
		return from == OrderPending
	}
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	return ok1 && ok2 && tr > fr
}

type ShippingDetails struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type RefundDetails struct {
	RefundStatus string `json:"refundStatus,omitempty"`
	RefundID     string `json:"refundId,omitempty"`
}

// CartLineItem is a snapshot of one listing at checkout time, embedded
// in the order's cart JSON column.
type CartLineItem struct {
	ID                    string        `json:"id"`
	Title                 string        `json:"title"`
	PriceCents            int64         `json:"priceCents"`
	Quantity              int           `json:"quantity"`
	SellerID              string        `json:"sellerId"`
	SellerEmail           string        `json:"sellerEmail,omitempty"`
	SellerStripeAccountID string        `json:"sellerStripeAccountId,omitempty"`
	ShippingStatus        string        `json:"shippingStatus,omitempty"`
	RefundDetails         RefundDetails `json:"refundDetails,omitempty"`
}

func (li CartLineItem) LineTotal() int64 {
	return li.PriceCents * int64(li.Quantity)
}

// Order is the system-of-record row for one buyer checkout. Created by
// checkout completion or lazily reconstructed by webhook fallback;
// never hard-deleted.
type Order struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Status        OrderStatus    `gorm:"size:24;index;not null;default:'pending'" json:"status"`
	PaymentID     string         `gorm:"size:128;uniqueIndex:ux_orders_payment_id,where:payment_id <> ''" json:"paymentId"`
	BuyerID       string         `gorm:"size:64;index" json:"buyerId"`
	BuyerEmail    string         `gorm:"size:320" json:"buyerEmail"`
	Shipping      datatypes.JSON `gorm:"column:shipping_details" json:"shippingDetails"`
	Cart          datatypes.JSON `gorm:"column:cart" json:"cart"`
	Reconstructed bool           `gorm:"default:false" json:"reconstructed"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Order) TableName() string { return "orders" }
