package bootstrap

import (
	"context"
	"log"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/controller"
	"hq-billing-be/internal/pkg/locker"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/mailer"
	"hq-billing-be/internal/pkg/metrics"
	"hq-billing-be/internal/repository/memory"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/internal/service"
	"hq-billing-be/pkg/billing/events"
	"hq-billing-be/pkg/billing/gateway"
	"hq-billing-be/pkg/billing/invoicing"
	"hq-billing-be/pkg/billing/lifecycle"
	"hq-billing-be/pkg/billing/metering"

	pktNats "hq-billing-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const invoiceMailTopic = "invoice.mail"

type Container struct {
	// Controllers
	PlanController         controller.IPlanController
	UsageController        controller.IUsageController
	SubscriptionController controller.ISubscriptionController
	InvoiceController      controller.IInvoiceController
	PaymentController      controller.IPaymentController
	BillingController      controller.IBillingController
	WebhookController      controller.IWebhookController
	Middleware             controller.Middleware

	// Background work (run by cmd/rest and cmd/billing_worker)
	ConsumerService   service.IConsumerService
	UsageEventService *service.UsageEventService
	JobRunner         *service.JobRunner

	Logger   *logger.ZapLogger
	Registry *prometheus.Registry

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	billingMetrics := metrics.NewBillingMetrics(registry)

	c := &Container{Logger: sysLogger, Registry: registry}

	// 2. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.closers = append(c.closers, natsSub.Close)
	}

	// Redis backs the subscription locks. Without it a single instance
	// still serializes through the in-process locker.
	var lock locker.Locker
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Falling back to in-process locks", err)
		lock = locker.NewMemoryLocker()
		_ = rdb.Close()
	} else {
		lock = locker.NewRedisLocker(rdb)
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// Invoice mail queue
	mailPubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = mailPubSub.Close() })
	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
	)
	mailQueue := service.NewInvoiceMailQueue(mailPubSub, invoiceMailTopic)

	// Payment gateways
	gateways := gateway.NewManager(
		gateway.NewMidtransGateway(gateway.MidtransConfig{
			ServerKey:    cfg.Midtrans.ServerKey,
			IsProduction: cfg.Midtrans.IsProduction,
			FinishURL:    cfg.Midtrans.FinishURL,
		}),
		gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}),
	)

	// 3. Billing domain components
	var publisher events.Publisher = events.NoopPublisher{}
	if natsPub != nil {
		publisher = events.NewNatsPublisher(natsPub, sysLogger)
	}
	lifecycleManager := lifecycle.NewManager(sysLogger, cfg.Billing.PaymentTermsDays)
	generator := invoicing.NewGenerator(sysLogger)
	meter := metering.NewMeter()

	// 4. Services
	planService := service.NewPlanService(uowFactory, memory.NewPlanCache(cfg.Billing.PlanCacheTTL), sysLogger)
	usageService := service.NewUsageService(uowFactory, meter, sysLogger)
	billingService := service.NewBillingService(uowFactory, lifecycleManager, generator, meter, lock,
		publisher, billingMetrics, sysLogger, cfg.Billing)
	subscriptionService := service.NewSubscriptionService(uowFactory, lifecycleManager, generator, meter, lock,
		publisher, billingMetrics, sysLogger, cfg.Billing)
	invoiceService := service.NewInvoiceService(uowFactory, generator, lifecycleManager, mailQueue,
		publisher, sysLogger, cfg.Billing.PaymentTermsDays)
	providerService := service.NewProviderService(uowFactory, gateways, generator, lifecycleManager,
		publisher, billingMetrics, sysLogger, cfg.Billing)

	c.JobRunner = service.NewJobRunner(billingService, subscriptionService, invoiceService, sysLogger)
	c.ConsumerService = service.NewConsumerService(mailPubSub, invoiceMailTopic, uowFactory, emailService, sysLogger)
	c.UsageEventService = service.NewUsageEventService(natsSub, usageService, sysLogger)

	// 5. Controllers
	c.Middleware = controller.NewMiddleware(cfg.App.JWTSecret)
	c.PlanController = controller.NewPlanController(planService)
	c.UsageController = controller.NewUsageController(usageService)
	c.SubscriptionController = controller.NewSubscriptionController(subscriptionService)
	c.InvoiceController = controller.NewInvoiceController(invoiceService, providerService)
	c.PaymentController = controller.NewPaymentController(providerService)
	c.BillingController = controller.NewBillingController(billingService, subscriptionService, c.JobRunner, sysLogger)
	c.WebhookController = controller.NewWebhookController(providerService, sysLogger)

	return c
}

// Close releases broker and cache connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
