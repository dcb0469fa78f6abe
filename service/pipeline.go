package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/datatypes"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
)

// Store is the slice of the repository the webhook pipeline uses.
// *repository.Store satisfies it.
type Store interface {
	ClaimEvent(ctx context.Context, provider, eventID string) (bool, error)
	HasProcessed(ctx context.Context, provider, eventID string) (bool, error)
	UpsertOrder(ctx context.Context, order *model.Order) error
	LatestOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
	TransitionOrderStatus(ctx context.Context, id string, to model.OrderStatus) (*model.Order, error)
	Enqueue(ctx context.Context, entry *model.OutboxEntry) error
	CreateDeadLetter(ctx context.Context, entry *model.DeadLetterEntry) error
	RecordStripeEvent(ctx context.Context, rec *model.StripeEventRecord) error
	MarkStripeEventProcessed(ctx context.Context, eventID string) error
}

// TxFunc runs fn with a transaction-bound Store. Everything fn writes
// commits or rolls back together.
type TxFunc func(ctx context.Context, fn func(tx Store) error) error

// GormTx adapts the repository's transaction runner to TxFunc.
func GormTx(store *repository.Store) TxFunc {
	return func(ctx context.Context, fn func(tx Store) error) error {
		return store.WithTx(ctx, func(tx *repository.Store) error {
			return fn(tx)
		})
	}
}

// Pipeline owns webhook intake and side-effect job execution. Intake
// verifies nothing itself (controllers do signature checks); it
// records the event and durably queues the reconciliation work, so the
// HTTP response to the provider never waits on downstream effects.
type Pipeline struct {
	store  Store
	runTx  TxFunc
	rec    *Reconciler
	fanout *Fanout
	mailer Mail
}

func NewPipeline(store Store, runTx TxFunc, rec *Reconciler, fanout *Fanout, mailer Mail) *Pipeline {
	return &Pipeline{store: store, runTx: runTx, rec: rec, fanout: fanout, mailer: mailer}
}

// job payloads

type transferJob struct {
	OrderID string            `json:"orderId"`
	Group   model.SellerGroup `json:"group"`
	Skip    bool              `json:"skip,omitempty"`
}

type sellerEmailJob struct {
	OrderID  string                `json:"orderId"`
	Group    model.SellerGroup     `json:"group"`
	Shipping model.ShippingDetails `json:"shipping"`
}

type buyerEmailJob struct {
	OrderID    string               `json:"orderId"`
	BuyerEmail string               `json:"buyerEmail"`
	Items      []model.CartLineItem `json:"items"`
	TotalCents int64                `json:"totalCents"`
}

func mustJSON(v interface{}) datatypes.JSON {
	buf, err := json.Marshal(v)
	if err != nil {
		// all job payload types marshal cleanly
		log.Printf("❌ payload marshal: %v", err)
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(buf)
}

// IntakeStripe records a verified stripe event and queues whatever
// work it implies. Errors here are internal; the webhook route still
// answers 200 so the provider does not storm us with retries.
func (p *Pipeline) IntakeStripe(ctx context.Context, evt stripe.Event, raw []byte) error {
	if err := p.store.RecordStripeEvent(ctx, &model.StripeEventRecord{
		EventID:   evt.ID,
		EventType: string(evt.Type),
		Payload:   datatypes.JSON(raw),
	}); err != nil {
		log.Printf("❌ failed to record stripe event %s: %v", evt.ID, err)
	}

	switch evt.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return fmt.Errorf("parse payment_intent: %w", err)
		}
		pe := PaymentEvent{
			Provider:     "stripe",
			EventID:      evt.ID,
			PaymentID:    pi.ID,
			AmountCents:  pi.Amount,
			Currency:     string(pi.Currency),
			ReceiptEmail: pi.ReceiptEmail,
			Metadata:     pi.Metadata,
		}
		if pi.TransferData != nil && pi.TransferData.Destination != nil {
			pe.DestinationAccount = pi.TransferData.Destination.ID
		}
		return p.EnqueueReconcile(ctx, pe)

	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return fmt.Errorf("parse checkout_session: %w", err)
		}
		pe := PaymentEvent{
			Provider:    "stripe",
			EventID:     evt.ID,
			AmountCents: cs.AmountTotal,
			Currency:    string(cs.Currency),
			Metadata:    cs.Metadata,
		}
		if cs.PaymentIntent != nil {
			pe.PaymentID = cs.PaymentIntent.ID
		}
		if cs.CustomerDetails != nil {
			pe.ReceiptEmail = cs.CustomerDetails.Email
		}
		return p.EnqueueReconcile(ctx, pe)

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return fmt.Errorf("parse payment_intent: %w", err)
		}
		return p.markStripeStatus(ctx, evt.ID, pi.ID, model.OrderPaymentFailed)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return fmt.Errorf("parse charge: %w", err)
		}
		pid := ch.ID
		if ch.PaymentIntent != nil {
			pid = ch.PaymentIntent.ID
		}
		return p.markStripeStatus(ctx, evt.ID, pid, model.OrderRefunded)

	case "charge.dispute.created":
		var d stripe.Dispute
		if err := json.Unmarshal(evt.Data.Raw, &d); err != nil {
			return fmt.Errorf("parse dispute: %w", err)
		}
		pid := ""
		if d.PaymentIntent != nil {
			pid = d.PaymentIntent.ID
		}
		return p.markStripeStatus(ctx, evt.ID, pid, model.OrderDisputed)

	default:
		log.Printf("stripe event %s type %s not handled", evt.ID, evt.Type)
		return nil
	}
}

// paypalEvent is the envelope PayPal posts; Resource holds the
// type-specific object.
type paypalEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	Resource     json.RawMessage `json:"resource"`
	ResourceType string          `json:"resource_type"`
}

type paypalCapture struct {
	ID     string `json:"id"`
	Amount struct {
		Value        string `json:"value"`
		CurrencyCode string `json:"currency_code"`
	} `json:"amount"`
	CustomID string `json:"custom_id"`
	Payee    struct {
		EmailAddress string `json:"email_address"`
	} `json:"payee"`
}

// IntakePayPal handles a verified PayPal delivery. Unhandled event
// types are acknowledged and skipped.
func (p *Pipeline) IntakePayPal(ctx context.Context, raw []byte) error {
	var evt paypalEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return fmt.Errorf("parse paypal event: %w", err)
	}

	switch evt.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		var capture paypalCapture
		if err := json.Unmarshal(evt.Resource, &capture); err != nil {
			return fmt.Errorf("parse paypal capture: %w", err)
		}
		amount, err := strconv.ParseFloat(capture.Amount.Value, 64)
		if err != nil {
			log.Printf("⚠ unparseable paypal amount %q on %s", capture.Amount.Value, evt.ID)
		}
		pe := PaymentEvent{
			Provider:    "paypal",
			EventID:     evt.ID,
			PaymentID:   capture.ID,
			AmountCents: dollarsToCents(amount),
			Currency:    capture.Amount.CurrencyCode,
		}
		if capture.CustomID != "" {
			pe.Metadata = map[string]string{"orderId": capture.CustomID}
		}
		return p.EnqueueReconcile(ctx, pe)

	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		var capture paypalCapture
		if err := json.Unmarshal(evt.Resource, &capture); err != nil {
			return fmt.Errorf("parse paypal capture: %w", err)
		}
		_, err := p.markByPaymentID(ctx, capture.ID, model.OrderRefunded)
		return err

	default:
		log.Printf("paypal event %s type %s not handled", evt.ID, evt.EventType)
		return nil
	}
}

// EnqueueReconcile durably queues reconciliation for one payment
// event. The idempotency key collapses duplicate deliveries at the
// queue level before the ledger even sees them.
func (p *Pipeline) EnqueueReconcile(ctx context.Context, pe PaymentEvent) error {
	return p.store.Enqueue(ctx, &model.OutboxEntry{
		Type:           model.JobWebhookReconcile,
		Payload:        mustJSON(pe),
		OrderID:        pe.Metadata["orderId"],
		IdempotencyKey: "reconcile:" + pe.Provider + ":" + pe.EventID,
	})
}

// markByPaymentID applies a provider status to the matching order.
// The bool reports whether the event is settled: either the order
// moved, or it was already at or past the target status.
func (p *Pipeline) markByPaymentID(ctx context.Context, paymentID string, to model.OrderStatus) (bool, error) {
	if paymentID == "" {
		return false, nil
	}
	order, err := p.store.LatestOrderByPaymentID(ctx, paymentID)
	if err != nil {
		log.Printf("⚠ no order for payment %s, cannot mark %s", paymentID, to)
		return false, nil
	}
	if _, err := p.store.TransitionOrderStatus(ctx, order.ID, to); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// redelivery after the order already moved
			log.Printf("order %s already past %s", order.ID, to)
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// markStripeStatus applies a terminal provider status and, once the
// order is settled, retires the stored event from the replay backlog
// so admin retries stop picking it up.
func (p *Pipeline) markStripeStatus(ctx context.Context, eventID, paymentID string, to model.OrderStatus) error {
	settled, err := p.markByPaymentID(ctx, paymentID, to)
	if err != nil {
		return err
	}
	if settled {
		if err := p.store.MarkStripeEventProcessed(ctx, eventID); err != nil {
			log.Printf("⚠ failed to mark stripe event %s processed: %v", eventID, err)
		}
	}
	return nil
}

// ExecuteJob runs one outbox job. Returning an error puts the entry
// back on the retry schedule; the consumer owns that bookkeeping.
func (p *Pipeline) ExecuteJob(ctx context.Context, entry model.OutboxEntry) error {
	switch entry.Type {
	case model.JobWebhookReconcile:
		var pe PaymentEvent
		if err := json.Unmarshal(entry.Payload, &pe); err != nil {
			return fmt.Errorf("unmarshal reconcile job: %w", err)
		}
		return p.reconcile(ctx, pe)

	case model.JobSellerTransfer:
		var job transferJob
		if err := json.Unmarshal(entry.Payload, &job); err != nil {
			return fmt.Errorf("unmarshal transfer job: %w", err)
		}
		if job.Skip {
			return nil
		}
		_, err := p.fanout.TransferToSeller(ctx, job.OrderID, job.Group, entry.IdempotencyKey)
		return err

	case model.JobSellerEmail:
		var job sellerEmailJob
		if err := json.Unmarshal(entry.Payload, &job); err != nil {
			return fmt.Errorf("unmarshal seller email job: %w", err)
		}
		if job.Group.SellerEmail == "" {
			log.Printf("⚠ seller %s has no email on order %s", job.Group.SellerID, job.OrderID)
			return nil
		}
		subject := fmt.Sprintf("You sold %d item(s) - order %s", len(job.Group.Items), job.OrderID)
		return p.mailer.Send(job.Group.SellerEmail, subject, SellerSaleBody(job.OrderID, job.Group, job.Shipping))

	case model.JobBuyerEmail:
		var job buyerEmailJob
		if err := json.Unmarshal(entry.Payload, &job); err != nil {
			return fmt.Errorf("unmarshal buyer email job: %w", err)
		}
		if job.BuyerEmail == "" {
			return nil
		}
		subject := fmt.Sprintf("Order %s confirmed", job.OrderID)
		return p.mailer.Send(job.BuyerEmail, subject, BuyerConfirmationBody(job.OrderID, job.Items, job.TotalCents))

	case model.JobOrderAlert:
		// an operator requeue of an unmatched-funds alert must not
		// consume it; the alert goes straight back to the DLQ and
		// only a purge removes it
		var pe PaymentEvent
		if err := json.Unmarshal(entry.Payload, &pe); err != nil {
			return fmt.Errorf("unmarshal alert job: %w", err)
		}
		return p.store.CreateDeadLetter(ctx, &model.DeadLetterEntry{
			Queue:          "alerts",
			Type:           model.JobOrderAlert,
			Payload:        entry.Payload,
			OrderID:        entry.OrderID,
			IdempotencyKey: entry.IdempotencyKey,
			Reason:         "order_unmatched",
			LastError:      "no order found for payment " + pe.PaymentID,
		})

	default:
		log.Printf("⚠ unknown outbox job type %q (id=%d), dropping", entry.Type, entry.ID)
		return nil
	}
}

// reconcile is the payment-succeeded path: resolve the order, then in
// one transaction claim the event id, write the order, and queue every
// per-seller side effect. Each side effect is its own outbox job, so a
// failing transfer or email never rolls back the reconciliation and
// never blocks a sibling seller.
func (p *Pipeline) reconcile(ctx context.Context, pe PaymentEvent) error {
	done, err := p.store.HasProcessed(ctx, pe.Provider, pe.EventID)
	if err != nil {
		return err
	}
	if done {
		log.Printf("event %s already processed, skipping", pe.EventID)
		return nil
	}

	resolved := p.rec.Resolve(ctx, pe)
	groups := p.fanout.BuildSellerGroups(resolved.Items, resolved.ShippingCents, resolved.Shipping)

	orderID := resolved.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}

	var total int64
	for _, g := range groups {
		total += g.TotalCents()
	}

	// Destination charges route funds to the seller at capture
	// time; a post-hoc transfer would double-pay.
	destinationCharged := pe.DestinationAccount != "" && len(groups) == 1

	err = p.runTx(ctx, func(tx Store) error {
		claimed, err := tx.ClaimEvent(ctx, pe.Provider, pe.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		order := &model.Order{
			ID:            orderID,
			Status:        model.OrderPaid,
			PaymentID:     pe.PaymentID,
			BuyerEmail:    resolved.BuyerEmail,
			Shipping:      mustJSON(resolved.Shipping),
			Cart:          mustJSON(resolved.Items),
			Reconstructed: resolved.Reconstructed,
		}
		if err := tx.UpsertOrder(ctx, order); err != nil {
			return err
		}

		for _, g := range groups {
			if err := tx.Enqueue(ctx, &model.OutboxEntry{
				Type:           model.JobSellerTransfer,
				Payload:        mustJSON(transferJob{OrderID: orderID, Group: g, Skip: destinationCharged}),
				OrderID:        orderID,
				IdempotencyKey: fmt.Sprintf("transfer:%s:%s", orderID, g.SellerID),
			}); err != nil {
				return err
			}
			if err := tx.Enqueue(ctx, &model.OutboxEntry{
				Type:           model.JobSellerEmail,
				Payload:        mustJSON(sellerEmailJob{OrderID: orderID, Group: g, Shipping: resolved.Shipping}),
				OrderID:        orderID,
				IdempotencyKey: fmt.Sprintf("semail:%s:%s", orderID, g.SellerID),
			}); err != nil {
				return err
			}
		}

		if err := tx.Enqueue(ctx, &model.OutboxEntry{
			Type:           model.JobBuyerEmail,
			Payload:        mustJSON(buyerEmailJob{OrderID: orderID, BuyerEmail: resolved.BuyerEmail, Items: resolved.Items, TotalCents: total}),
			OrderID:        orderID,
			IdempotencyKey: "bemail:" + orderID,
		}); err != nil {
			return err
		}

		if resolved.Reconstructed {
			// Alert-worthy: funds captured but no order was
			// ever found. Operators see this in the DLQ view.
			return tx.CreateDeadLetter(ctx, &model.DeadLetterEntry{
				Queue:          "alerts",
				Type:           model.JobOrderAlert,
				Payload:        mustJSON(pe),
				OrderID:        orderID,
				IdempotencyKey: "alert:" + pe.EventID,
				Reason:         "order_unmatched",
				LastError:      "no order found for payment " + pe.PaymentID,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pe.Provider == "stripe" {
		if err := p.store.MarkStripeEventProcessed(ctx, pe.EventID); err != nil {
			log.Printf("⚠ failed to mark stripe event %s processed: %v", pe.EventID, err)
		}
	}
	return nil
}
