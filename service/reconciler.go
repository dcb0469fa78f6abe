package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
)

// PaymentEvent is the provider-neutral payment-succeeded event the
// pipeline reconciles. Metadata carries whatever the checkout flow
// attached at intent-creation time; it may be empty.
type PaymentEvent struct {
	Provider           string            `json:"provider"`
	EventID            string            `json:"eventId"`
	PaymentID          string            `json:"paymentId"`
	AmountCents        int64             `json:"amountCents"`
	Currency           string            `json:"currency"`
	ReceiptEmail       string            `json:"receiptEmail"`
	DestinationAccount string            `json:"destinationAccount,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// ReconciledOrder is the normalized (buyerEmail, shipping, cart) tuple
// plus identity the fan-out works from.
type ReconciledOrder struct {
	OrderID       string
	PaymentID     string
	BuyerEmail    string
	Shipping      model.ShippingDetails
	Items         []model.CartLineItem
	ShippingCents int64
	Reconstructed bool
}

// metadata wire shapes; checkout attaches prices in dollars.
type metaCartItem struct {
	ID                    string  `json:"id"`
	Title                 string  `json:"title"`
	Price                 float64 `json:"price"`
	Quantity              int     `json:"quantity"`
	SellerID              string  `json:"sellerId"`
	SellerEmail           string  `json:"sellerEmail"`
	SellerStripeAccountID string  `json:"sellerStripeAccountId"`
}

func dollarsToCents(d float64) int64 {
	if d < 0 {
		return 0
	}
	return int64(d*100 + 0.5)
}

// OrderSource is the order lookup the fallback path depends on.
type OrderSource interface {
	LatestOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
}

// Reconciler resolves a payment-succeeded event to a concrete order:
// metadata first, store lookup with bounded backoff second, synthetic
// reconstruction last so captured funds are never dropped.
type Reconciler struct {
	orders      OrderSource
	maxAttempts uint64
	baseBackoff time.Duration
	maxElapsed  time.Duration
}

func NewReconciler(orders OrderSource, maxAttempts uint, baseBackoff, maxElapsed time.Duration) *Reconciler {
	return &Reconciler{
		orders:      orders,
		maxAttempts: uint64(maxAttempts),
		baseBackoff: baseBackoff,
		maxElapsed:  maxElapsed,
	}
}

// Resolve normalizes the event into a ReconciledOrder. It never fails
// for a captured payment: parse errors degrade to placeholders and an
// unfindable order degrades to a reconstructed record (callers raise
// the operator alert for those).
func (r *Reconciler) Resolve(ctx context.Context, pe PaymentEvent) ReconciledOrder {
	if cartJSON, ok := pe.Metadata["cart"]; ok && cartJSON != "" {
		return r.fromMetadata(pe, cartJSON)
	}
	if resolved, err := r.fromStore(ctx, pe); err == nil {
		return resolved
	}
	log.Printf("⚠ no order found for payment %s after retry budget, reconstructing", pe.PaymentID)
	return r.reconstruct(pe)
}

func (r *Reconciler) fromMetadata(pe PaymentEvent, cartJSON string) ReconciledOrder {
	out := ReconciledOrder{
		OrderID:    pe.Metadata["orderId"],
		PaymentID:  pe.PaymentID,
		BuyerEmail: pe.Metadata["userEmail"],
	}
	if out.BuyerEmail == "" {
		out.BuyerEmail = pe.ReceiptEmail
	}

	var rawItems []metaCartItem
	if err := json.Unmarshal([]byte(cartJSON), &rawItems); err != nil {
		// Payment is captured; a mangled cart must still be
		// accounted for.
		log.Printf("❌ invalid cart metadata on payment %s: %v", pe.PaymentID, err)
		return r.reconstruct(pe)
	}
	for _, it := range rawItems {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		out.Items = append(out.Items, model.CartLineItem{
			ID:                    it.ID,
			Title:                 it.Title,
			PriceCents:            dollarsToCents(it.Price),
			Quantity:              qty,
			SellerID:              it.SellerID,
			SellerEmail:           it.SellerEmail,
			SellerStripeAccountID: it.SellerStripeAccountID,
		})
	}

	if shipJSON, ok := pe.Metadata["shippingDetails"]; ok && shipJSON != "" {
		if err := json.Unmarshal([]byte(shipJSON), &out.Shipping); err != nil {
			log.Printf("⚠ invalid shipping metadata on payment %s: %v", pe.PaymentID, err)
			out.Shipping = placeholderShipping()
		}
	} else {
		out.Shipping = placeholderShipping()
	}
	if shipTotal, ok := pe.Metadata["shippingTotal"]; ok && shipTotal != "" {
		var dollars float64
		if err := json.Unmarshal([]byte(shipTotal), &dollars); err == nil {
			out.ShippingCents = dollarsToCents(dollars)
		}
	}
	return out
}

// fromStore polls for the order row the checkout request writes; the
// webhook routinely races that request, so retries back off under a
// hard deadline instead of pinning a worker on a fixed cadence.
func (r *Reconciler) fromStore(ctx context.Context, pe PaymentEvent) (ReconciledOrder, error) {
	backoff := retry.WithMaxRetries(r.maxAttempts, retry.NewExponential(r.baseBackoff))
	backoff = retry.WithMaxDuration(r.maxElapsed, backoff)

	var order *model.Order
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := r.orders.LatestOrderByPaymentID(ctx, pe.PaymentID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		order = found
		return nil
	})
	if err != nil {
		return ReconciledOrder{}, err
	}

	out := ReconciledOrder{
		OrderID:    order.ID,
		PaymentID:  pe.PaymentID,
		BuyerEmail: order.BuyerEmail,
	}
	if out.BuyerEmail == "" {
		out.BuyerEmail = pe.ReceiptEmail
	}
	if len(order.Cart) > 0 {
		if err := json.Unmarshal(order.Cart, &out.Items); err != nil {
			log.Printf("⚠ unreadable cart on order %s: %v", order.ID, err)
		}
	}
	if len(order.Shipping) > 0 {
		if err := json.Unmarshal(order.Shipping, &out.Shipping); err != nil {
			out.Shipping = placeholderShipping()
		}
	} else {
		out.Shipping = placeholderShipping()
	}
	return out, nil
}

// reconstruct builds a last-resort synthetic record from the payment
// itself. The caller files an operator alert for every reconstructed
// order; the sale is never silently attributed to anyone.
func (r *Reconciler) reconstruct(pe PaymentEvent) ReconciledOrder {
	return ReconciledOrder{
		PaymentID:  pe.PaymentID,
		BuyerEmail: pe.ReceiptEmail,
		Shipping:   placeholderShipping(),
		Items: []model.CartLineItem{
			{
				ID:         pe.PaymentID,
				Title:      "Unreconciled marketplace sale",
				PriceCents: pe.AmountCents,
				Quantity:   1,
			},
		},
		Reconstructed: true,
	}
}

func placeholderShipping() model.ShippingDetails {
	return model.ShippingDetails{Name: "Unknown", Country: "US"}
}
