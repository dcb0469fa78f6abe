package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/EliteSamurai/M4KTABA-sub001/cache"
	"github.com/EliteSamurai/M4KTABA-sub001/config"
	"github.com/EliteSamurai/M4KTABA-sub001/controller"
	kafkax "github.com/EliteSamurai/M4KTABA-sub001/kafka"
	"github.com/EliteSamurai/M4KTABA-sub001/middleware"
	"github.com/EliteSamurai/M4KTABA-sub001/psp"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
	"github.com/EliteSamurai/M4KTABA-sub001/routes"
	"github.com/EliteSamurai/M4KTABA-sub001/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect db:", err)
	}

	store := repository.NewStore(db, cfg.Outbox.MaxAttempts)
	if err := store.Migrate(); err != nil {
		log.Fatal("failed to migrate:", err)
	}

	redisClient := cache.Connect(cfg.Redis.Addr, cfg.Redis.Password)

	stripeClient := psp.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.WebhookSecret)
	paypalClient := psp.NewPayPalClient(cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.WebhookID, cfg.PayPal.APIBase)
	mailer := service.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)

	zones := service.NewZoneTable()
	fanout := service.NewFanout(zones, stripeClient, cfg.PlatformFeeBps)
	reconciler := service.NewReconciler(store, cfg.Reconcile.MaxAttempts, cfg.Reconcile.BaseBackoff, cfg.Reconcile.MaxElapsed)
	pipeline := service.NewPipeline(store, service.GormTx(store), reconciler, fanout, mailer)
	offers := service.NewOffers(store, stripeClient, mailer, cfg.CheckoutLinkTTL, cfg.BaseURL)

	skipVerify := cfg.Webhook.SkipVerify && !cfg.Production()

	// job queue: outbox poller publishes, consumer executes
	producer := kafkax.NewProducer(cfg.Kafka.Broker, cfg.Kafka.JobTopic)
	poller := service.NewPoller(store, producer, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
	go poller.Run(context.Background())

	consumer := kafkax.NewConsumer(cfg.Kafka.Broker)
	consumer.Consume(cfg.Kafka.JobTopic, kafkax.JobHandler(store, pipeline, cfg.Outbox.BaseBackoff))

	app := fiber.New()
	app.Use(logger.New())

	auth := middleware.AuthRequired(cfg.JWTSecret)
	admin := middleware.RoleRequired("admin")
	routes.Register(app,
		controller.NewWebhookController(stripeClient, paypalClient, pipeline, skipVerify),
		controller.NewOfferController(offers),
		controller.NewQueueController(store, redisClient, pipeline),
		controller.NewOrderController(store),
		auth, admin,
	)

	log.Println("HTTP server running on port " + cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal("fiber error:", err)
	}
}
