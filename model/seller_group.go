package model

// UnknownSellerID buckets cart items that carry no seller reference so
// no item is ever dropped from fan-out.
const UnknownSellerID = "unknown"

// SellerGroup is the derived per-seller slice of one order. It is
// recomputed on demand and never persisted.
type SellerGroup struct {
	SellerID              string         `json:"sellerId"`
	SellerEmail           string         `json:"sellerEmail,omitempty"`
	SellerStripeAccountID string         `json:"sellerStripeAccountId,omitempty"`
	Items                 []CartLineItem `json:"items"`
	SubtotalCents         int64          `json:"subtotalCents"`
	ShippingCents         int64          `json:"shippingCents"`
	TaxCents              int64          `json:"taxCents"`
}

func (g SellerGroup) TotalCents() int64 {
	return g.SubtotalCents + g.ShippingCents + g.TaxCents
}
