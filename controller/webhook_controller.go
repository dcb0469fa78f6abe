package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"

	"github.com/EliteSamurai/M4KTABA-sub001/psp"
	"github.com/EliteSamurai/M4KTABA-sub001/service"
)

// WebhookController terminates provider callbacks. Signature
// verification is the only thing that can 400; once a delivery
// verifies, the response is 200 no matter what happens internally, so
// the provider never retry-storms us over our own failures.
type WebhookController struct {
	stripe     *psp.StripeClient
	paypal     *psp.PayPalClient
	pipe       *service.Pipeline
	skipVerify bool
}

// NewWebhookController wires the webhook edge. skipVerify must only
// ever be true outside production; main enforces that.
func NewWebhookController(stripeClient *psp.StripeClient, paypalClient *psp.PayPalClient, pipe *service.Pipeline, skipVerify bool) *WebhookController {
	if skipVerify {
		log.Println("⚠⚠ WEBHOOK SIGNATURE VERIFICATION DISABLED - development only ⚠⚠")
	}
	return &WebhookController{stripe: stripeClient, paypal: paypalClient, pipe: pipe, skipVerify: skipVerify}
}

func (wc *WebhookController) Stripe(c *fiber.Ctx) error {
	body := c.Body()

	var evt stripe.Event
	var err error
	if wc.skipVerify {
		evt, err = psp.ParseEventUnverified(body)
	} else {
		sig := c.Get("stripe-signature")
		if sig == "" {
			return c.Status(400).JSON(fiber.Map{"error": "missing stripe-signature header"})
		}
		evt, err = wc.stripe.VerifyEvent(body, sig)
	}
	if err != nil {
		log.Printf("❌ stripe webhook rejected: %v", err)
		return c.Status(400).JSON(fiber.Map{"error": "signature verification failed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wc.pipe.IntakeStripe(ctx, evt, body); err != nil {
		// internal failure: observable via outbox/DLQ, not the response
		log.Printf("❌ stripe intake for event %s: %v", evt.ID, err)
	}
	return c.JSON(fiber.Map{"received": true})
}

func (wc *WebhookController) PayPal(c *fiber.Ctx) error {
	body := c.Body()

	headers := psp.PayPalHeaders{
		TransmissionID:   c.Get("paypal-transmission-id"),
		TransmissionTime: c.Get("paypal-transmission-time"),
		CertURL:          c.Get("paypal-cert-url"),
		AuthAlgo:         c.Get("paypal-auth-algo"),
		TransmissionSig:  c.Get("paypal-transmission-sig"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if !wc.skipVerify {
		if !headers.Complete() {
			return c.Status(400).JSON(fiber.Map{"error": "missing paypal signature headers"})
		}
		if err := wc.paypal.VerifyWebhookSignature(ctx, headers, body); err != nil {
			log.Printf("❌ paypal webhook rejected: %v", err)
			return c.Status(400).JSON(fiber.Map{"error": "signature verification failed"})
		}
	}

	if err := wc.pipe.IntakePayPal(ctx, body); err != nil {
		log.Printf("❌ paypal intake: %v", err)
	}
	return c.JSON(fiber.Map{"received": true})
}
