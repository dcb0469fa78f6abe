package controller

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/EliteSamurai/M4KTABA-sub001/cache"
	"github.com/EliteSamurai/M4KTABA-sub001/psp"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
	"github.com/EliteSamurai/M4KTABA-sub001/service"
)

const queueCacheTTL = 5 * time.Second

// QueueController backs the internal operator console: queue listings
// with counts, and the manual retry/requeue/purge actions.
type QueueController struct {
	store *repository.Store
	cache *cache.Client
	pipe  *service.Pipeline
}

func NewQueueController(store *repository.Store, cacheClient *cache.Client, pipe *service.Pipeline) *QueueController {
	return &QueueController{store: store, cache: cacheClient, pipe: pipe}
}

func paramID(c *fiber.Ctx) uint {
	raw := c.Query("id")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func (qc *QueueController) invalidate(ctx context.Context) {
	qc.cache.Del(ctx, "queues:outbox", "queues:dlq", "queues:stripe")
}

func (qc *QueueController) Outbox(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var payload fiber.Map
	if qc.cache.GetJSON(ctx, "queues:outbox", &payload) {
		return c.JSON(payload)
	}

	entries, err := qc.store.ListOutbox(ctx, 200)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	counts, err := qc.store.CountQueues(ctx)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	payload = fiber.Map{"counts": counts, "entries": entries}
	qc.cache.SetJSON(ctx, "queues:outbox", payload, queueCacheTTL)
	return c.JSON(payload)
}

func (qc *QueueController) DLQ(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var payload fiber.Map
	if qc.cache.GetJSON(ctx, "queues:dlq", &payload) {
		return c.JSON(payload)
	}

	entries, err := qc.store.ListDLQ(ctx, 200)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	counts, err := qc.store.CountQueues(ctx)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	payload = fiber.Map{"counts": counts, "entries": entries}
	qc.cache.SetJSON(ctx, "queues:dlq", payload, queueCacheTTL)
	return c.JSON(payload)
}

func (qc *QueueController) StripeEvents(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var payload fiber.Map
	if qc.cache.GetJSON(ctx, "queues:stripe", &payload) {
		return c.JSON(payload)
	}

	recs, err := qc.store.ListStripeEvents(ctx, 200)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	payload = fiber.Map{"entries": recs}
	qc.cache.SetJSON(ctx, "queues:stripe", payload, queueCacheTTL)
	return c.JSON(payload)
}

// RetryOutbox makes pending jobs due now; with ?id= just that one.
func (qc *QueueController) RetryOutbox(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := qc.store.RetryOutbox(ctx, paramID(c))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	qc.invalidate(ctx)
	return c.JSON(fiber.Map{"retried": n})
}

// RequeueDLQ moves dead entries back into the outbox with attempts
// reset.
func (qc *QueueController) RequeueDLQ(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := qc.store.RequeueFromDLQ(ctx, paramID(c))
	if errors.Is(err, repository.ErrEntryNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "entry not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	qc.invalidate(ctx)
	return c.JSON(fiber.Map{"requeued": n})
}

func (qc *QueueController) PurgeDLQ(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := qc.store.PurgeDLQ(ctx, paramID(c))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	qc.invalidate(ctx)
	return c.JSON(fiber.Map{"purged": n})
}

// RetryStripe replays stored stripe events through intake. Intake and
// the reconcile job are idempotent, so replaying a processed event is
// harmless.
func (qc *QueueController) RetryStripe(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	recs, err := qc.store.UnprocessedStripeEvents(ctx, paramID(c))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	var replayed int64
	for _, rec := range recs {
		evt, err := psp.ParseEventUnverified(rec.Payload)
		if err != nil {
			log.Printf("⚠ stored stripe event %d unparseable: %v", rec.ID, err)
			continue
		}
		if err := qc.pipe.IntakeStripe(ctx, evt, rec.Payload); err != nil {
			log.Printf("❌ replay of stripe event %s: %v", rec.EventID, err)
			continue
		}
		replayed++
	}
	qc.invalidate(ctx)
	return c.JSON(fiber.Map{"replayed": replayed})
}
