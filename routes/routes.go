package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/EliteSamurai/M4KTABA-sub001/controller"
)

// Register wires the service's HTTP surface. Webhook routes take no
// auth (providers sign instead); queue and order admin routes require
// the admin role.
func Register(app *fiber.App,
	wc *controller.WebhookController,
	oc *controller.OfferController,
	qc *controller.QueueController,
	orders *controller.OrderController,
	authMiddleware fiber.Handler,
	adminMiddleware fiber.Handler,
) {
	api := app.Group("/api")

	hooks := api.Group("/webhooks")
	hooks.Post("/stripe", wc.Stripe)
	hooks.Post("/stripe-webhook", wc.Stripe)
	hooks.Post("/paypal", wc.PayPal)

	offer := api.Group("/offer")
	offer.Post("/", authMiddleware, oc.Create)
	offer.Patch("/:id", authMiddleware, oc.Respond)

	queues := api.Group("/queues", authMiddleware, adminMiddleware)
	queues.Get("/outbox", qc.Outbox)
	queues.Get("/dlq", qc.DLQ)
	queues.Get("/stripe", qc.StripeEvents)
	queues.Post("/outbox/retry", qc.RetryOutbox)
	queues.Post("/dlq/requeue", qc.RequeueDLQ)
	queues.Post("/dlq/purge", qc.PurgeDLQ)
	queues.Post("/stripe/retry", qc.RetryStripe)

	order := api.Group("/order", authMiddleware, adminMiddleware)
	order.Get("/", orders.List)
	order.Get("/:id", orders.Get)
	order.Patch("/:id/status", orders.UpdateStatus)
}
