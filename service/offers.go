package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/psp"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
)

var (
	ErrNotSeller       = errors.New("only the offer's seller may respond")
	ErrOfferNotPending = errors.New("offer is not pending")
	ErrOfferCap        = errors.New("offer limit reached for this book")
	ErrBadAmount       = errors.New("counter amount must be positive")
)

// OfferStore is the repository slice the offer flow uses.
type OfferStore interface {
	CreateOfferCapped(ctx context.Context, offer *model.Offer, maxPerBook int64) error
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
	UpdateOfferStatus(ctx context.Context, id string, status model.OfferStatus) error
	CounterOffer(ctx context.Context, original *model.Offer, counter *model.Offer) error
}

// CheckoutClient builds hosted payment pages. *psp.StripeClient
// satisfies it.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, req psp.CheckoutRequest) (string, error)
}

// Offers implements the buyer-offer negotiation flow: propose,
// accept-with-payment-link, decline, counter.
type Offers struct {
	store    OfferStore
	checkout CheckoutClient
	mailer   Mail
	linkTTL  time.Duration
	baseURL  string
}

func NewOffers(store OfferStore, checkout CheckoutClient, mailer Mail, linkTTL time.Duration, baseURL string) *Offers {
	return &Offers{store: store, checkout: checkout, mailer: mailer, linkTTL: linkTTL, baseURL: baseURL}
}

type CreateOfferInput struct {
	BookID      string
	BookTitle   string
	BuyerID     string
	BuyerEmail  string
	SellerID    string
	SellerEmail string
	AmountCents int64
}

// Create places a buyer's offer. The store enforces the per-book cap
// atomically, so concurrent creates cannot slip past it.
func (o *Offers) Create(ctx context.Context, in CreateOfferInput) (*model.Offer, error) {
	if in.AmountCents <= 0 {
		return nil, ErrBadAmount
	}

	offer := &model.Offer{
		ID:          uuid.NewString(),
		BookID:      in.BookID,
		BookTitle:   in.BookTitle,
		BuyerID:     in.BuyerID,
		BuyerEmail:  in.BuyerEmail,
		SellerID:    in.SellerID,
		SellerEmail: in.SellerEmail,
		AmountCents: in.AmountCents,
		Status:      model.OfferPending,
	}
	if err := o.store.CreateOfferCapped(ctx, offer, model.MaxOffersPerBook); err != nil {
		if errors.Is(err, repository.ErrOfferLimit) {
			return nil, ErrOfferCap
		}
		return nil, err
	}

	if err := o.mailer.Send(in.SellerEmail, "New offer on "+in.BookTitle,
		fmt.Sprintf("A buyer offered %s for %q.\n", centsToDollars(in.AmountCents), in.BookTitle)); err != nil {
		log.Printf("⚠ offer notice to seller failed: %v", err)
	}
	return offer, nil
}

type RespondResult struct {
	Offer       *model.Offer `json:"offer"`
	Counter     *model.Offer `json:"counter,omitempty"`
	CheckoutURL string       `json:"checkoutUrl,omitempty"`
}

// Respond applies a seller's accept, decline, or counter action to a
// pending offer. The caller must already be authenticated; this
// enforces that the actor is the offer's seller.
func (o *Offers) Respond(ctx context.Context, offerID, actorID, action string, counterAmountCents int64) (*RespondResult, error) {
	offer, err := o.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != actorID {
		return nil, ErrNotSeller
	}
	if offer.Status != model.OfferPending {
		return nil, ErrOfferNotPending
	}

	switch action {
	case "accept":
		return o.accept(ctx, offer)
	case "decline":
		return o.decline(ctx, offer)
	case "counter":
		return o.counter(ctx, offer, counterAmountCents)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func (o *Offers) accept(ctx context.Context, offer *model.Offer) (*RespondResult, error) {
	url, err := o.checkout.CreateCheckoutSession(ctx, psp.CheckoutRequest{
		Title:         offer.BookTitle,
		AmountCents:   offer.AmountCents,
		Currency:      "usd",
		CustomerEmail: offer.BuyerEmail,
		SuccessURL:    o.baseURL + "/checkout/success",
		CancelURL:     o.baseURL + "/offers",
		ExpiresIn:     o.linkTTL,
		Metadata: map[string]string{
			"offerId":  offer.ID,
			"bookId":   offer.BookID,
			"sellerId": offer.SellerID,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateOfferStatus(ctx, offer.ID, model.OfferAccepted); err != nil {
		return nil, err
	}
	offer.Status = model.OfferAccepted

	body := fmt.Sprintf("Your offer of %s on %q was accepted!\n\nPay within %s: %s\n",
		centsToDollars(offer.AmountCents), offer.BookTitle, o.linkTTL, url)
	if err := o.mailer.Send(offer.BuyerEmail, "Offer accepted - complete your purchase", body); err != nil {
		log.Printf("⚠ payment link email failed for offer %s: %v", offer.ID, err)
	}
	return &RespondResult{Offer: offer, CheckoutURL: url}, nil
}

func (o *Offers) decline(ctx context.Context, offer *model.Offer) (*RespondResult, error) {
	if err := o.store.UpdateOfferStatus(ctx, offer.ID, model.OfferDeclined); err != nil {
		return nil, err
	}
	offer.Status = model.OfferDeclined

	body := fmt.Sprintf("Your offer of %s on %q was declined.\n", centsToDollars(offer.AmountCents), offer.BookTitle)
	if err := o.mailer.Send(offer.BuyerEmail, "Offer declined", body); err != nil {
		log.Printf("⚠ decline email failed for offer %s: %v", offer.ID, err)
	}
	return &RespondResult{Offer: offer}, nil
}

func (o *Offers) counter(ctx context.Context, offer *model.Offer, amountCents int64) (*RespondResult, error) {
	if amountCents <= 0 {
		return nil, ErrBadAmount
	}
	if offer.IsCounterOffer {
		// one counter-chain per original offer
		return nil, ErrOfferNotPending
	}

	counter := &model.Offer{
		ID:             uuid.NewString(),
		BookID:         offer.BookID,
		BookTitle:      offer.BookTitle,
		BuyerID:        offer.BuyerID,
		BuyerEmail:     offer.BuyerEmail,
		SellerID:       offer.SellerID,
		SellerEmail:    offer.SellerEmail,
		AmountCents:    amountCents,
		Status:         model.OfferPending,
		IsCounterOffer: true,
		ParentOfferID:  &offer.ID,
	}
	if err := o.store.CounterOffer(ctx, offer, counter); err != nil {
		return nil, err
	}
	offer.Status = model.OfferCountered

	body := fmt.Sprintf("The seller countered your %s offer on %q with %s.\n",
		centsToDollars(offer.AmountCents), offer.BookTitle, centsToDollars(amountCents))
	if err := o.mailer.Send(offer.BuyerEmail, "Counter-offer received", body); err != nil {
		log.Printf("⚠ counter email failed for offer %s: %v", offer.ID, err)
	}
	return &RespondResult{Offer: offer, Counter: counter}, nil
}
