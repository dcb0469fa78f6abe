package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

func testPipeline(store *mockStore, transfers *mockTransfers, mail *mockMail) *Pipeline {
	rec := NewReconciler(store, 1, time.Millisecond, 20*time.Millisecond)
	fanout := NewFanout(NewZoneTable(), transfers, 0)
	return NewPipeline(store, mockTx(store), rec, fanout, mail)
}

func twoSellerEvent() PaymentEvent {
	return PaymentEvent{
		Provider:     "stripe",
		EventID:      "evt_100",
		PaymentID:    "pi_100",
		AmountCents:  7200,
		Currency:     "usd",
		ReceiptEmail: "buyer@buyer.test",
		Metadata: map[string]string{
			"orderId":   "ord-100",
			"userEmail": "buyer@buyer.test",
			"cart": `[
				{"id":"b1","title":"Tafsir Vol 1","price":20,"quantity":1,"sellerId":"s1","sellerEmail":"s1@books.test","sellerStripeAccountId":"acct_s1"},
				{"id":"b2","title":"Fiqh of Trade","price":30,"quantity":1,"sellerId":"s2","sellerEmail":"s2@books.test","sellerStripeAccountId":"acct_s2"}
			]`,
			"shippingDetails": `{"name":"Amina","street":"1 High St","city":"Leeds","zip":"LS1","country":"GB"}`,
			"shippingTotal":   "10.00",
		},
	}
}

func TestReconcileFansOutPerSeller(t *testing.T) {
	store := newMockStore()
	pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

	require.NoError(t, pipe.reconcile(context.Background(), twoSellerEvent()))

	// order written as paid with the metadata identity
	require.Len(t, store.upserted, 1)
	order := store.upserted[0]
	assert.Equal(t, "ord-100", order.ID)
	assert.Equal(t, model.OrderPaid, order.Status)
	assert.Equal(t, "pi_100", order.PaymentID)
	assert.False(t, order.Reconstructed)

	// one transfer and one seller email per seller, one buyer email
	assert.Len(t, store.entriesOfType(model.JobSellerTransfer), 2)
	assert.Len(t, store.entriesOfType(model.JobSellerEmail), 2)
	require.Len(t, store.entriesOfType(model.JobBuyerEmail), 1)

	var buyer buyerEmailJob
	require.NoError(t, json.Unmarshal(store.entriesOfType(model.JobBuyerEmail)[0].Payload, &buyer))
	assert.Equal(t, "buyer@buyer.test", buyer.BuyerEmail)
	// 2000+500+500 + 3000+500+700 (GB VAT on subtotal+shipping)
	assert.Equal(t, int64(7200), buyer.TotalCents)

	// ledger claimed, no alert
	assert.True(t, store.claimed["stripe:evt_100"])
	assert.Empty(t, store.deadLetters)
}

func TestReconcileDuplicateDeliveryIsNoop(t *testing.T) {
	store := newMockStore()
	pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

	require.NoError(t, pipe.reconcile(context.Background(), twoSellerEvent()))
	firstCount := len(store.enqueued)
	firstUpserts := len(store.upserted)

	// provider redelivers the same event id
	require.NoError(t, pipe.reconcile(context.Background(), twoSellerEvent()))

	assert.Equal(t, firstCount, len(store.enqueued))
	assert.Equal(t, firstUpserts, len(store.upserted))
}

func TestReconcileReconstructedFilesAlert(t *testing.T) {
	store := newMockStore()
	pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

	pe := PaymentEvent{
		Provider:     "stripe",
		EventID:      "evt_lost",
		PaymentID:    "pi_lost",
		AmountCents:  4200,
		ReceiptEmail: "lost@buyer.test",
	}
	require.NoError(t, pipe.reconcile(context.Background(), pe))

	require.Len(t, store.upserted, 1)
	assert.True(t, store.upserted[0].Reconstructed)
	assert.NotEmpty(t, store.upserted[0].ID) // synthetic id minted

	require.Len(t, store.deadLetters, 1)
	alert := store.deadLetters[0]
	assert.Equal(t, "alerts", alert.Queue)
	assert.Equal(t, "order_unmatched", alert.Reason)
	assert.Equal(t, model.JobOrderAlert, alert.Type)

	// the unknown bucket still gets a (skippable) transfer job
	assert.Len(t, store.entriesOfType(model.JobSellerTransfer), 1)
}

func TestReconcileDestinationChargeSkipsTransfer(t *testing.T) {
	store := newMockStore()
	pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

	pe := PaymentEvent{
		Provider:           "stripe",
		EventID:            "evt_dc",
		PaymentID:          "pi_dc",
		AmountCents:        2000,
		DestinationAccount: "acct_s1",
		Metadata: map[string]string{
			"orderId":   "ord-dc",
			"userEmail": "b@buyer.test",
			"cart":      `[{"id":"b1","title":"X","price":20,"quantity":1,"sellerId":"s1","sellerStripeAccountId":"acct_s1"}]`,
		},
	}
	require.NoError(t, pipe.reconcile(context.Background(), pe))

	entries := store.entriesOfType(model.JobSellerTransfer)
	require.Len(t, entries, 1)
	var job transferJob
	require.NoError(t, json.Unmarshal(entries[0].Payload, &job))
	assert.True(t, job.Skip)
}

func TestReconcileEnqueueFailureRollsUpError(t *testing.T) {
	store := newMockStore()
	store.enqueueErr = errBoom
	pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

	err := pipe.reconcile(context.Background(), twoSellerEvent())
	assert.ErrorIs(t, err, errBoom)
	// the event must not land on the stripe processed list
	assert.Empty(t, store.stripeProcessed)
}

func TestIntakeStripe(t *testing.T) {
	t.Run("payment_intent.succeeded queues reconciliation", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		raw := []byte(`{"id":"pi_1","amount":4600,"currency":"usd","receipt_email":"b@buyer.test","metadata":{"orderId":"ord-1"}}`)
		evt := stripe.Event{
			ID:   "evt_1",
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: raw},
		}
		require.NoError(t, pipe.IntakeStripe(context.Background(), evt, []byte(`{}`)))

		require.Len(t, store.stripeRecords, 1)
		assert.Equal(t, "evt_1", store.stripeRecords[0].EventID)

		entries := store.entriesOfType(model.JobWebhookReconcile)
		require.Len(t, entries, 1)
		assert.Equal(t, "reconcile:stripe:evt_1", entries[0].IdempotencyKey)
		assert.Equal(t, "ord-1", entries[0].OrderID)

		var pe PaymentEvent
		require.NoError(t, json.Unmarshal(entries[0].Payload, &pe))
		assert.Equal(t, int64(4600), pe.AmountCents)
		assert.Equal(t, "pi_1", pe.PaymentID)
	})

	t.Run("payment_failed transitions the order", func(t *testing.T) {
		store := newMockStore()
		store.byPayment["pi_f"] = &model.Order{ID: "ord-f", Status: model.OrderPending}
		store.orders["ord-f"] = store.byPayment["pi_f"]
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		evt := stripe.Event{
			ID:   "evt_f",
			Type: "payment_intent.payment_failed",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_f"}`)},
		}
		require.NoError(t, pipe.IntakeStripe(context.Background(), evt, []byte(`{}`)))
		assert.Equal(t, []string{"ord-f:payment_failed"}, store.transitions)
		// transitioned, so the stored event leaves the replay backlog
		assert.Contains(t, store.stripeProcessed, "evt_f")
	})

	t.Run("redelivered refund settles the stored event", func(t *testing.T) {
		store := newMockStore()
		store.byPayment["pi_rr"] = &model.Order{ID: "ord-rr", Status: model.OrderRefunded}
		store.orders["ord-rr"] = store.byPayment["pi_rr"]
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		evt := stripe.Event{
			ID:   "evt_rr",
			Type: "charge.refunded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_rr"}`)},
		}
		require.NoError(t, pipe.IntakeStripe(context.Background(), evt, []byte(`{}`)))
		assert.Empty(t, store.transitions)
		assert.Contains(t, store.stripeProcessed, "evt_rr")
	})

	t.Run("refund with no matching order is acknowledged", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		evt := stripe.Event{
			ID:   "evt_r",
			Type: "charge.refunded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"ch_r"}`)},
		}
		assert.NoError(t, pipe.IntakeStripe(context.Background(), evt, []byte(`{}`)))
		assert.Empty(t, store.transitions)
		// unmatched: stays in the replay backlog for a later retry
		assert.Empty(t, store.stripeProcessed)
	})

	t.Run("unhandled types are recorded and skipped", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		evt := stripe.Event{ID: "evt_x", Type: "customer.created", Data: &stripe.EventData{Raw: []byte(`{}`)}}
		require.NoError(t, pipe.IntakeStripe(context.Background(), evt, []byte(`{}`)))
		assert.Len(t, store.stripeRecords, 1)
		assert.Empty(t, store.enqueued)
	})
}

func TestIntakePayPal(t *testing.T) {
	t.Run("capture completed queues reconciliation in cents", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		raw := []byte(`{
			"id": "WH-1",
			"event_type": "PAYMENT.CAPTURE.COMPLETED",
			"resource": {"id":"CAP-1","amount":{"value":"46.50","currency_code":"USD"},"custom_id":"ord-pp"}
		}`)
		require.NoError(t, pipe.IntakePayPal(context.Background(), raw))

		entries := store.entriesOfType(model.JobWebhookReconcile)
		require.Len(t, entries, 1)
		var pe PaymentEvent
		require.NoError(t, json.Unmarshal(entries[0].Payload, &pe))
		assert.Equal(t, "paypal", pe.Provider)
		assert.Equal(t, int64(4650), pe.AmountCents)
		assert.Equal(t, "ord-pp", pe.Metadata["orderId"])
	})

	t.Run("capture refunded marks the order", func(t *testing.T) {
		store := newMockStore()
		store.byPayment["CAP-2"] = &model.Order{ID: "ord-2", Status: model.OrderPaid}
		store.orders["ord-2"] = store.byPayment["CAP-2"]
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		raw := []byte(`{"id":"WH-2","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"CAP-2","amount":{"value":"5.00","currency_code":"USD"}}}`)
		require.NoError(t, pipe.IntakePayPal(context.Background(), raw))
		assert.Equal(t, []string{"ord-2:refunded"}, store.transitions)
	})

	t.Run("malformed body is an error", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})
		assert.Error(t, pipe.IntakePayPal(context.Background(), []byte(`{`)))
	})
}

func TestExecuteJob(t *testing.T) {
	t.Run("transfer job pays the seller", func(t *testing.T) {
		transfers := &mockTransfers{}
		pipe := testPipeline(newMockStore(), transfers, &mockMail{})

		g := model.SellerGroup{SellerID: "s1", SellerStripeAccountID: "acct_s1", SubtotalCents: 2000, ShippingCents: 500}
		entry := model.OutboxEntry{
			Type:           model.JobSellerTransfer,
			Payload:        mustJSON(transferJob{OrderID: "ord-1", Group: g}),
			IdempotencyKey: "transfer:ord-1:s1",
		}
		require.NoError(t, pipe.ExecuteJob(context.Background(), entry))
		require.Len(t, transfers.requests, 1)
		assert.Equal(t, int64(2500), transfers.requests[0].AmountCents)
	})

	t.Run("skip flag suppresses the transfer", func(t *testing.T) {
		transfers := &mockTransfers{}
		pipe := testPipeline(newMockStore(), transfers, &mockMail{})

		entry := model.OutboxEntry{
			Type:    model.JobSellerTransfer,
			Payload: mustJSON(transferJob{OrderID: "ord-1", Group: model.SellerGroup{SellerStripeAccountID: "acct_s1"}, Skip: true}),
		}
		require.NoError(t, pipe.ExecuteJob(context.Background(), entry))
		assert.Empty(t, transfers.requests)
	})

	t.Run("transfer failure surfaces for retry", func(t *testing.T) {
		transfers := &mockTransfers{failFor: map[string]error{"acct_s1": errBoom}}
		pipe := testPipeline(newMockStore(), transfers, &mockMail{})

		entry := model.OutboxEntry{
			Type:    model.JobSellerTransfer,
			Payload: mustJSON(transferJob{OrderID: "ord-1", Group: model.SellerGroup{SellerID: "s1", SellerStripeAccountID: "acct_s1"}}),
		}
		assert.ErrorIs(t, pipe.ExecuteJob(context.Background(), entry), errBoom)
	})

	t.Run("seller email includes sale details", func(t *testing.T) {
		mail := &mockMail{}
		pipe := testPipeline(newMockStore(), &mockTransfers{}, mail)

		g := model.SellerGroup{
			SellerID:    "s1",
			SellerEmail: "s1@books.test",
			Items:       []model.CartLineItem{{Title: "Tafsir Vol 1", PriceCents: 2000, Quantity: 1}},
		}
		entry := model.OutboxEntry{
			Type:    model.JobSellerEmail,
			Payload: mustJSON(sellerEmailJob{OrderID: "ord-1", Group: g, Shipping: ukShipping()}),
		}
		require.NoError(t, pipe.ExecuteJob(context.Background(), entry))
		require.Len(t, mail.sent, 1)
		assert.Equal(t, "s1@books.test", mail.sent[0].To)
		assert.Contains(t, mail.sent[0].Body, "Tafsir Vol 1")
	})

	t.Run("seller without email is skipped, not retried", func(t *testing.T) {
		mail := &mockMail{}
		pipe := testPipeline(newMockStore(), &mockTransfers{}, mail)

		entry := model.OutboxEntry{
			Type:    model.JobSellerEmail,
			Payload: mustJSON(sellerEmailJob{OrderID: "ord-1", Group: model.SellerGroup{SellerID: model.UnknownSellerID}}),
		}
		require.NoError(t, pipe.ExecuteJob(context.Background(), entry))
		assert.Empty(t, mail.sent)
	})

	t.Run("buyer email failure surfaces for retry", func(t *testing.T) {
		mail := &mockMail{sendErr: errBoom}
		pipe := testPipeline(newMockStore(), &mockTransfers{}, mail)

		entry := model.OutboxEntry{
			Type:    model.JobBuyerEmail,
			Payload: mustJSON(buyerEmailJob{OrderID: "ord-1", BuyerEmail: "b@buyer.test", TotalCents: 100}),
		}
		assert.ErrorIs(t, pipe.ExecuteJob(context.Background(), entry), errBoom)
	})

	t.Run("requeued alert goes back to the dlq", func(t *testing.T) {
		store := newMockStore()
		pipe := testPipeline(store, &mockTransfers{}, &mockMail{})

		// shape an operator requeue of an unmatched-funds alert
		pe := PaymentEvent{Provider: "stripe", EventID: "evt_lost", PaymentID: "pi_lost", AmountCents: 4200}
		entry := model.OutboxEntry{
			Type:           model.JobOrderAlert,
			Payload:        mustJSON(pe),
			OrderID:        "ord-lost",
			IdempotencyKey: "alert:evt_lost",
		}
		require.NoError(t, pipe.ExecuteJob(context.Background(), entry))

		require.Len(t, store.deadLetters, 1)
		alert := store.deadLetters[0]
		assert.Equal(t, "alerts", alert.Queue)
		assert.Equal(t, "order_unmatched", alert.Reason)
		assert.Equal(t, "alert:evt_lost", alert.IdempotencyKey)
		assert.Contains(t, alert.LastError, "pi_lost")
	})

	t.Run("unknown job type is dropped", func(t *testing.T) {
		pipe := testPipeline(newMockStore(), &mockTransfers{}, &mockMail{})
		entry := model.OutboxEntry{Type: "bogus", Payload: mustJSON(map[string]string{})}
		assert.NoError(t, pipe.ExecuteJob(context.Background(), entry))
	})
}
