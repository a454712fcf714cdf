package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/handlers"
	"github.com/ink3-shop/api/internal/jobs"
	"github.com/ink3-shop/api/internal/payments"
	"github.com/ink3-shop/api/internal/platform/config"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
	platformjobs "github.com/ink3-shop/api/internal/platform/jobs"
	"github.com/ink3-shop/api/internal/platform/observability"
	firestoreRepo "github.com/ink3-shop/api/internal/repositories/firestore"
	"github.com/ink3-shop/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	unitOfWork := pfirestore.NewUnitOfWork(firestoreProvider)

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	orderBookRepo, err := firestoreRepo.NewOrderBookRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order book repository", zap.Error(err))
	}
	paymentRepo, err := firestoreRepo.NewPaymentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise payment repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	couponStoreRepo, err := firestoreRepo.NewCouponStoreRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon store repository", zap.Error(err))
	}
	pointHistoryRepo, err := firestoreRepo.NewPointHistoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise point history repository", zap.Error(err))
	}
	orderPointRepo, err := firestoreRepo.NewOrderPointRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order point repository", zap.Error(err))
	}
	refundRepo, err := firestoreRepo.NewRefundRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise refund repository", zap.Error(err))
	}
	shipmentRepo, err := firestoreRepo.NewShipmentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise shipment repository", zap.Error(err))
	}
	bookRepo, err := firestoreRepo.NewBookRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise book repository", zap.Error(err))
	}
	packagingRepo, err := firestoreRepo.NewPackagingRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise packaging repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	registry, err := buildPaymentRegistry(cfg.PSP, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment registry", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	orderBookService, err := services.NewOrderBookService(services.OrderBookServiceDeps{
		OrderBooks: orderBookRepo,
		Books:      bookRepo,
		Packagings: packagingRepo,
		Coupons:    couponRepo,
		Stores:     couponStoreRepo,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("order_books")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order book service", zap.Error(err))
	}
	couponStoreService, err := services.NewCouponStoreService(services.CouponStoreServiceDeps{
		Stores:     couponStoreRepo,
		Coupons:    couponRepo,
		Users:      userRepo,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("coupon_stores")),
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon store service", zap.Error(err))
	}
	pointService, err := services.NewPointService(services.PointServiceDeps{
		Histories:   pointHistoryRepo,
		OrderPoints: orderPointRepo,
		UnitOfWork:  unitOfWork,
		Logger:      observability.EventLogger(logger.Named("points")),
	})
	if err != nil {
		logger.Fatal("failed to initialise point service", zap.Error(err))
	}
	shipmentService, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Shipments:  shipmentRepo,
		Orders:     orderService,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("shipments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment service", zap.Error(err))
	}

	var pubsubClient *pubsub.Client
	var pointPublisher services.PointEventPublisher
	if strings.TrimSpace(cfg.PubSub.ProjectID) != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := platformjobs.NewPubSubPointPublisher(pubsubClient.Topic(cfg.PubSub.PointAccrualTopic))
		if err != nil {
			logger.Fatal("failed to initialise point publisher", zap.Error(err))
		}
		pointPublisher = publisher
	} else {
		logger.Warn("pubsub project not configured; point accrual events are disabled")
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:   paymentRepo,
		Orders:     orderService,
		OrderBooks: orderBookService,
		Coupons:    couponStoreService,
		Points:     pointService,
		Registry:   registry,
		Events:     pointPublisher,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}
	orderMainService, err := services.NewOrderMainService(services.OrderMainServiceDeps{
		Refunds:    refundRepo,
		Payments:   paymentRepo,
		Orders:     orderService,
		OrderBooks: orderBookService,
		Shipments:  shipmentService,
		Coupons:    couponStoreService,
		Points:     pointService,
		UnitOfWork: unitOfWork,
		Logger:     observability.EventLogger(logger.Named("order_main")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order main service", zap.Error(err))
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workerWG sync.WaitGroup
	runWorker := func(name string, run func(context.Context) error) {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			if err := run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped", zap.String("worker", name), zap.Error(err))
			}
		}()
	}

	advancer, err := jobs.NewShipmentAdvancer(jobs.ShipmentAdvancerDeps{
		Shipments: shipmentService,
		Interval:  cfg.Scheduler.SweepInterval,
		Logger:    logger.Named("shipment_advancer"),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment advancer", zap.Error(err))
	}
	runWorker("shipment_advancer", advancer.Run)

	if pubsubClient != nil {
		deadLetterPublisher, err := platformjobs.NewPubSubDeadLetterPublisher(pubsubClient.Topic(cfg.PubSub.CouponDeadLetterTopic))
		if err != nil {
			logger.Fatal("failed to initialise dead letter publisher", zap.Error(err))
		}

		batchConsumer, err := jobs.NewCouponBatchConsumer(jobs.CouponBatchConsumerDeps{
			Subscription: pubsubClient.Subscription(cfg.PubSub.CouponBatchSubscription),
			Coupons:      couponStoreService,
			DeadLetter:   deadLetterPublisher,
			MaxAttempts:  cfg.PubSub.ConsumerMaxAttempts,
			BackoffBase:  cfg.PubSub.ConsumerBackoff,
			Logger:       logger.Named("coupon_batch"),
		})
		if err != nil {
			logger.Fatal("failed to initialise coupon batch consumer", zap.Error(err))
		}
		runWorker("coupon_batch_consumer", batchConsumer.Run)

		accrualConsumer, err := jobs.NewPointAccrualConsumer(jobs.PointAccrualConsumerDeps{
			Subscription: pubsubClient.Subscription(cfg.PubSub.PointAccrualSubscription),
			Points:       pointService,
			Logger:       logger.Named("point_accrual"),
		})
		if err != nil {
			logger.Fatal("failed to initialise point accrual consumer", zap.Error(err))
		}
		runWorker("point_accrual_consumer", accrualConsumer.Run)

		deadLetterConsumer, err := jobs.NewDeadLetterConsumer(
			pubsubClient.Subscription(cfg.PubSub.CouponDeadLetterSubscription),
			logger.Named("dead_letter"),
		)
		if err != nil {
			logger.Fatal("failed to initialise dead letter consumer", zap.Error(err))
		}
		runWorker("dead_letter_consumer", deadLetterConsumer.Run)

		if strings.TrimSpace(cfg.Scheduler.BirthdayCouponID) != "" {
			batchPublisher, err := platformjobs.NewPubSubCouponBatchPublisher(pubsubClient.Topic(cfg.PubSub.CouponBatchTopic))
			if err != nil {
				logger.Fatal("failed to initialise coupon batch publisher", zap.Error(err))
			}
			birthdayJob, err := jobs.NewBirthdayBatchJob(jobs.BirthdayBatchJobDeps{
				Users:     userRepo,
				Publisher: batchPublisher,
				CouponID:  cfg.Scheduler.BirthdayCouponID,
				Logger:    logger.Named("birthday_batch"),
			})
			if err != nil {
				logger.Fatal("failed to initialise birthday batch job", zap.Error(err))
			}
			runWorker("birthday_batch_job", birthdayJob.Run)
		} else {
			logger.Info("birthday coupon not configured; daily batch disabled")
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(logger.Named("http")),
	}

	healthHandlers := handlers.NewHealthHandlers(func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
		defer cancel()
		client, err := firestoreProvider.Client(checkCtx)
		if err != nil {
			return err
		}
		_, err = client.Collections(checkCtx).Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	})

	orderHandlers := handlers.NewOrderHandlers(orderMainService, orderService, orderBookService, shipmentService)
	paymentHandlers := handlers.NewPaymentHandlers(paymentService)
	couponHandlers := handlers.NewCouponStoreHandlers(couponStoreService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithCouponStoreRoutes(couponHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("ink3 shop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopWorkers()
	workerWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildPaymentRegistry assembles the settlement strategies. Point payments are
// always available; gateway strategies register only when configured.
func buildPaymentRegistry(cfg config.PSPConfig, logger *zap.Logger) (*payments.Registry, error) {
	eventLogger := observability.EventLogger(logger)

	pointProvider := payments.NewPointProvider(time.Now)
	strategies := map[domain.PaymentType]payments.Strategy{
		domain.PaymentTypePoint: {Processor: pointProvider, Parser: pointProvider},
	}

	if strings.TrimSpace(cfg.TossSecretKey) != "" {
		toss, err := payments.NewTossProvider(payments.TossProviderConfig{
			BaseURL:   cfg.TossBaseURL,
			SecretKey: cfg.TossSecretKey,
			Timeout:   cfg.GatewayTimeout,
			Logger:    eventLogger,
		})
		if err != nil {
			return nil, err
		}
		strategies[domain.PaymentTypeToss] = payments.Strategy{Processor: toss, Parser: toss}
	}

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: eventLogger,
		})
		if err != nil {
			return nil, err
		}
		strategies[domain.PaymentTypeStripe] = payments.Strategy{Processor: stripe, Parser: stripe}
	}

	return payments.NewRegistry(strategies)
}
