package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

// JobMessage is what crosses the wire to the job consumer: just the
// outbox row id. The consumer re-reads the row, so the database stays
// the source of truth for payload and retry state.
type JobMessage struct {
	EntryID uint `json:"entryId"`
}

// JobPublisher ships job messages to the durable queue.
// *kafka.Producer satisfies it.
type JobPublisher interface {
	PublishJob(key string, payload []byte) error
}

// PollerStore is the outbox slice the poller uses.
type PollerStore interface {
	DueEntries(ctx context.Context, limit int) ([]model.OutboxEntry, error)
	LeaseEntry(ctx context.Context, id uint, lease time.Duration) error
}

// Poller drains due outbox entries onto the job topic. Publishing
// takes a short lease on the row so one slow consumer does not cause
// a republish storm; a crashed consumer's entry simply comes due
// again after the lease.
type Poller struct {
	store    PollerStore
	pub      JobPublisher
	interval time.Duration
	batch    int
	lease    time.Duration
}

func NewPoller(store PollerStore, pub JobPublisher, interval time.Duration, batch int) *Poller {
	return &Poller{store: store, pub: pub, interval: interval, batch: batch, lease: 30 * time.Second}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) processDue(ctx context.Context) {
	entries, err := p.store.DueEntries(ctx, p.batch)
	if err != nil {
		log.Printf("❌ failed to fetch due outbox entries: %v", err)
		return
	}

	for _, entry := range entries {
		payload, err := json.Marshal(JobMessage{EntryID: entry.ID})
		if err != nil {
			continue
		}
		key := entry.OrderID
		if key == "" {
			key = entry.IdempotencyKey
		}
		if err := p.pub.PublishJob(key, payload); err != nil {
			log.Printf("❌ failed to publish outbox entry %d: %v", entry.ID, err)
			continue
		}
		if err := p.store.LeaseEntry(ctx, entry.ID, p.lease); err != nil {
			log.Printf("⚠ failed to lease outbox entry %d: %v", entry.ID, err)
		}
	}
}
