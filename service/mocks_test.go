package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/psp"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
)

// mockStore implements Store, OrderSource, OfferStore and PollerStore
// in memory.
type mockStore struct {
	mu sync.Mutex

	claimed         map[string]bool
	orders          map[string]*model.Order
	byPayment       map[string]*model.Order
	upserted        []*model.Order
	enqueued        []*model.OutboxEntry
	deadLetters     []*model.DeadLetterEntry
	stripeRecords   []*model.StripeEventRecord
	stripeProcessed []string
	transitions     []string
	offers          map[string]*model.Offer
	offerCounts     map[string]int64
	leased          []uint

	paymentLookups int
	enqueueErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		claimed:     map[string]bool{},
		orders:      map[string]*model.Order{},
		byPayment:   map[string]*model.Order{},
		offers:      map[string]*model.Offer{},
		offerCounts: map[string]int64{},
	}
}

func (m *mockStore) ClaimEvent(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + ":" + eventID
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockStore) HasProcessed(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed[provider+":"+eventID], nil
}

func (m *mockStore) UpsertOrder(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, order)
	m.orders[order.ID] = order
	return nil
}

func (m *mockStore) LatestOrderByPaymentID(_ context.Context, paymentID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentLookups++
	if o, ok := m.byPayment[paymentID]; ok {
		return o, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockStore) TransitionOrderStatus(_ context.Context, id string, to model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if !model.CanTransition(o.Status, to) {
		return nil, repository.ErrInvalidTransition
	}
	m.transitions = append(m.transitions, id+":"+string(to))
	o.Status = to
	return o, nil
}

func (m *mockStore) Enqueue(_ context.Context, entry *model.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	for _, e := range m.enqueued {
		if e.IdempotencyKey == entry.IdempotencyKey {
			return nil // ON CONFLICT DO NOTHING
		}
	}
	entry.ID = uint(len(m.enqueued) + 1)
	m.enqueued = append(m.enqueued, entry)
	return nil
}

func (m *mockStore) CreateDeadLetter(_ context.Context, entry *model.DeadLetterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, entry)
	return nil
}

func (m *mockStore) RecordStripeEvent(_ context.Context, rec *model.StripeEventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stripeRecords = append(m.stripeRecords, rec)
	return nil
}

func (m *mockStore) MarkStripeEventProcessed(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stripeProcessed = append(m.stripeProcessed, eventID)
	return nil
}

func (m *mockStore) entriesOfType(jobType string) []*model.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutboxEntry
	for _, e := range m.enqueued {
		if e.Type == jobType {
			out = append(out, e)
		}
	}
	return out
}

// OfferStore

func (m *mockStore) CreateOffer(_ context.Context, offer *model.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ID] = offer
	if !offer.IsCounterOffer {
		m.offerCounts[offer.BuyerID+":"+offer.BookID]++
	}
	return nil
}

// CreateOfferCapped mirrors the store: check and insert under one
// lock, counters exempt from the cap.
func (m *mockStore) CreateOfferCapped(_ context.Context, offer *model.Offer, maxPerBook int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !offer.IsCounterOffer && m.offerCounts[offer.BuyerID+":"+offer.BookID] >= maxPerBook {
		return repository.ErrOfferLimit
	}
	m.offers[offer.ID] = offer
	if !offer.IsCounterOffer {
		m.offerCounts[offer.BuyerID+":"+offer.BookID]++
	}
	return nil
}

func (m *mockStore) GetOffer(_ context.Context, id string) (*model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.offers[id]; ok {
		return o, nil
	}
	return nil, repository.ErrOfferNotFound
}

func (m *mockStore) UpdateOfferStatus(_ context.Context, id string, status model.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.offers[id]; ok {
		o.Status = status
	}
	return nil
}

func (m *mockStore) CounterOffer(ctx context.Context, original *model.Offer, counter *model.Offer) error {
	if err := m.UpdateOfferStatus(ctx, original.ID, model.OfferCountered); err != nil {
		return err
	}
	return m.CreateOffer(ctx, counter)
}

// PollerStore

func (m *mockStore) DueEntries(_ context.Context, limit int) ([]model.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OutboxEntry
	for _, e := range m.enqueued {
		if e.ProcessedAt == nil && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockStore) LeaseEntry(_ context.Context, id uint, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leased = append(m.leased, id)
	return nil
}

func mockTx(m *mockStore) TxFunc {
	return func(_ context.Context, fn func(tx Store) error) error {
		return fn(m)
	}
}

// mockTransfers records transfer requests and can fail by destination.
type mockTransfers struct {
	mu       sync.Mutex
	requests []psp.TransferRequest
	failFor  map[string]error
}

func (m *mockTransfers) CreateTransfer(_ context.Context, req psp.TransferRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[req.Destination]; ok {
		return "", err
	}
	m.requests = append(m.requests, req)
	return "tr_" + req.Destination, nil
}

// mockMail records outbound messages.
type mockMail struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *mockMail) Configured() bool { return true }

func (m *mockMail) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// mockCheckout returns a canned payment link.
type mockCheckout struct {
	lastReq psp.CheckoutRequest
	url     string
	err     error
}

func (m *mockCheckout) CreateCheckoutSession(_ context.Context, req psp.CheckoutRequest) (string, error) {
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

// mockPublisher records published job messages.
type mockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (m *mockPublisher) PublishJob(_ string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, payload)
	return nil
}

var errBoom = errors.New("boom")
