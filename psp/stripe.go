package psp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeClient wraps the pieces of the Stripe API the pipeline uses:
// webhook verification, connected-account transfers, and hosted
// checkout sessions for accepted offers.
type StripeClient struct {
	api           *client.API
	webhookSecret string
}

func NewStripeClient(apiKey, webhookSecret string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api, webhookSecret: webhookSecret}
}

// VerifyEvent checks the stripe-signature header against the webhook
// secret and returns the parsed event. Any verification failure is an
// error; callers respond 400 and stop.
func (c *StripeClient) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
}

// ParseEventUnverified decodes a payload without a signature check.
// Only the development bypass uses this.
func ParseEventUnverified(payload []byte) (stripe.Event, error) {
	var evt stripe.Event
	err := json.Unmarshal(payload, &evt)
	return evt, err
}

type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
}

// CreateTransfer moves a seller's share of a captured payment to their
// connected account. The idempotency key makes duplicate job runs
// settle on one transfer.
func (c *StripeClient) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)

	tr, err := c.api.Transfers.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

type CheckoutRequest struct {
	Title         string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	ExpiresIn     time.Duration
	Metadata      map[string]string
}

// CreateCheckoutSession builds a time-limited hosted payment page and
// returns its URL.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		ExpiresAt:     stripe.Int64(time.Now().Add(req.ExpiresIn).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Title),
					},
				},
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
