// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storeseo/pointsledger/internal/config"
	"github.com/storeseo/pointsledger/internal/domain/ports/adapter"
	pg "github.com/storeseo/pointsledger/internal/infra/db/postgres"
	"github.com/storeseo/pointsledger/internal/infra/logging"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
	"github.com/storeseo/pointsledger/internal/infra/payment"
	red "github.com/storeseo/pointsledger/internal/infra/redis"
	"github.com/storeseo/pointsledger/internal/infra/sched"
	"github.com/storeseo/pointsledger/internal/infra/web"
	"github.com/storeseo/pointsledger/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txMgr := pg.NewTxManager(pool)
	ledgerRepo := pg.NewLedgerRepo(pool)
	priceRepo := pg.NewServicePriceRepoCacheDecorator(pg.NewServicePriceRepo(pool), redisClient)
	packageRepo := pg.NewPackageRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	promoRepo := pg.NewPromoRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Gateway.APIKey == "" {
		gateway = payment.NewNoopGateway()
		logger.Warn().Msg("payment gateway: noop (dev mode, all payments approved)")
	} else {
		gateway = payment.NewCheckoutDirectGateway(cfg.Gateway.APIKey, cfg.Gateway.Sandbox)
		logger.Info().Bool("sandbox", cfg.Gateway.Sandbox).Msg("payment gateway: checkout")
	}

	// ---- Use cases ----
	pricingUC := usecase.NewPricingUseCase(priceRepo, logger)
	pointsUC := usecase.NewPointsUseCase(ledgerRepo, subRepo, pricingUC, txMgr, logger)
	promoUC := usecase.NewPromoUseCase(promoRepo, logger)
	purchaseUC := usecase.NewPurchaseUseCase(
		purchaseRepo, packageRepo, ledgerRepo, pointsUC, promoUC, gateway, txMgr,
		cfg.Billing.VAT, cfg.Billing.Currency, cfg.Gateway.CallbackURL, logger,
	)
	subUC := usecase.NewSubscriptionUseCase(subRepo, packageRepo, ledgerRepo, pointsUC, txMgr, logger)

	// ---- HTTP server ----
	srv := web.NewServer(pointsUC, purchaseUC, promoUC, pricingUC, subUC, packageRepo, locker, cfg.Admin.Token, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(cfg.Server.Timeout),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Background workers ----
	reconciler := sched.NewPaymentReconciler(purchaseUC, purchaseRepo, logger,
		cfg.Scheduler.ReconcileInterval, cfg.Scheduler.PendingStaleAfter)
	go reconciler.Start(ctx)

	sweep := sched.NewSubscriptionSweep(cfg.Scheduler.SweepInterval, subUC, logger)
	go func() { _ = sweep.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := server.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
