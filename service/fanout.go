package service

import (
	"context"
	"log"
	"sort"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/psp"
)

// TransferClient is the slice of the payment processor the fan-out
// needs. *psp.StripeClient satisfies it.
type TransferClient interface {
	CreateTransfer(ctx context.Context, req psp.TransferRequest) (string, error)
}

// Fanout splits one buyer payment across the order's sellers.
type Fanout struct {
	zones          *ZoneTable
	transfers      TransferClient
	platformFeeBps int64
}

func NewFanout(zones *ZoneTable, transfers TransferClient, platformFeeBps int64) *Fanout {
	return &Fanout{zones: zones, transfers: transfers, platformFeeBps: platformFeeBps}
}

// BuildSellerGroups partitions cart items by seller and prices each
// group. Items without a seller reference land in the house bucket so
// nothing is dropped. The order's shipping total is split across
// groups with the remainder cents going to the first groups, so the
// per-group shipping always sums back to the order total.
func (f *Fanout) BuildSellerGroups(items []model.CartLineItem, shippingTotalCents int64, dest model.ShippingDetails) []model.SellerGroup {
	bySeller := make(map[string]*model.SellerGroup)
	var order []string

	for _, item := range items {
		sellerID := item.SellerID
		if sellerID == "" {
			sellerID = model.UnknownSellerID
		}
		g, ok := bySeller[sellerID]
		if !ok {
			g = &model.SellerGroup{
				SellerID:              sellerID,
				SellerEmail:           item.SellerEmail,
				SellerStripeAccountID: item.SellerStripeAccountID,
			}
			bySeller[sellerID] = g
			order = append(order, sellerID)
		}
		if g.SellerEmail == "" {
			g.SellerEmail = item.SellerEmail
		}
		if g.SellerStripeAccountID == "" {
			g.SellerStripeAccountID = item.SellerStripeAccountID
		}
		g.Items = append(g.Items, item)
		g.SubtotalCents += item.LineTotal()
	}

	sort.Strings(order)

	n := int64(len(order))
	if n == 0 {
		return nil
	}
	share := shippingTotalCents / n
	rem := shippingTotalCents % n

	rule := f.zones.Lookup(dest.Country, dest.State)

	groups := make([]model.SellerGroup, 0, n)
	for i, sellerID := range order {
		g := bySeller[sellerID]
		g.ShippingCents = share
		if int64(i) < rem {
			g.ShippingCents++
		}
		g.TaxCents = rule.Tax(g.SubtotalCents, g.ShippingCents)
		groups = append(groups, *g)
	}
	return groups
}

// TransferAmount is the seller's payout for one group: subtotal plus
// shipping, minus the configured platform fee. Tax remittance is
// jurisdiction-dependent and not netted here.
func (f *Fanout) TransferAmount(g model.SellerGroup) int64 {
	gross := g.SubtotalCents + g.ShippingCents
	fee := gross * f.platformFeeBps / 10000
	return gross - fee
}

// TransferToSeller issues one connected-account transfer for a group.
// Groups without a connected account are skipped: the house bucket and
// unboarded sellers settle manually.
func (f *Fanout) TransferToSeller(ctx context.Context, orderID string, g model.SellerGroup, idempotencyKey string) (string, error) {
	if g.SellerStripeAccountID == "" {
		log.Printf("⚠ no connected account for seller %s on order %s, skipping transfer", g.SellerID, orderID)
		return "", nil
	}
	return f.transfers.CreateTransfer(ctx, psp.TransferRequest{
		AmountCents:    f.TransferAmount(g),
		Currency:       "usd",
		Destination:    g.SellerStripeAccountID,
		TransferGroup:  orderID,
		IdempotencyKey: idempotencyKey,
	})
}
