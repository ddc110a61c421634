package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coin-rewards-ledger/config"
	"coin-rewards-ledger/handlers"
	"coin-rewards-ledger/logger"
	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/services"
	"coin-rewards-ledger/store"
	"coin-rewards-ledger/utils"
	"coin-rewards-ledger/workers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	log := logger.New("coin-rewards-ledger")

	cfg, foundDotenv, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if !foundDotenv {
		log.Warn("no .env file found, reading environment variables directly")
	}
	if cfg.LogLevel != "" {
		if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			log.Logger.SetLevel(lvl)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	storeOpts := store.Options{
		MaxRetries: cfg.StoreMaxRetries,
		OnRetry: func(path string) {
			collection, _, _ := strings.Cut(path, "/")
			m.StoreRetries.WithLabelValues(collection).Inc()
		},
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		gs := store.NewGormStore(db, storeOpts)
		if err := gs.Migrate(); err != nil {
			log.WithError(err).Fatal("failed to migrate database")
		}
		st = gs
		log.Info("using postgres document store")
	} else {
		st = store.NewMemoryStore(storeOpts)
		log.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("failed to reach redis")
		}
		store.NewRedisRelay(rdb, store.DefaultRelayChannel, st.Changes(), log).Start(ctx)
	}

	var receipts services.ReceiptUploader
	if cfg.ReceiptsEnabled() {
		r2, err := utils.NewR2ReceiptStore(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize R2 client")
		}
		receipts = r2
	} else {
		log.Warn("R2 credentials not set, deposit receipts are disabled")
	}

	settings := services.NewSettingsService(st, services.DefaultSettings(cfg), log)
	ledger := services.NewLedgerService(st, settings, m, log)
	referrals := services.NewReferralService(st, ledger, m, log)
	accounts := services.NewAccountService(st, referrals, log)
	challenges, err := services.NewChallengeService(accounts, ledger, log)
	if err != nil {
		log.WithError(err).Fatal("invalid challenge tiers")
	}
	withdrawals := services.NewWithdrawService(st, accounts, ledger, referrals, settings, m, log)
	deposits := services.NewDepositService(st, accounts, ledger, settings, receipts, m, log)
	promotions := services.NewVideoPromotionService(st, accounts, ledger, settings, m, log)
	reconciler := services.NewReconciler(st, withdrawals, deposits, promotions, m, log)

	if err := settings.EnsureDefaults(ctx); err != nil {
		log.WithError(err).Fatal("failed to seed settings")
	}

	sched, err := reconciler.Start(ctx, cfg.ReconcileInterval)
	if err != nil {
		log.WithError(err).Fatal("failed to start reconciliation scheduler")
	}
	defer sched.Shutdown()

	if cfg.IdentitySyncURL != "" {
		syncWorker := workers.NewIdentitySyncWorker(st, accounts, cfg.IdentitySyncURL, cfg.IdentitySyncPath, cfg.IdentitySyncToken, log)
		go syncWorker.Start(ctx)
	} else {
		log.Warn("IDENTITY_SYNC_URL not set, identity sync worker disabled")
	}

	if cfg.AuthServiceURL == "" {
		log.Warn("AUTH_SERVICE_URL not set, account streams will reject every token")
	}
	authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken)

	app := handlers.NewApp(&handlers.Services{
		Store:       st,
		Accounts:    accounts,
		Ledger:      ledger,
		Referrals:   referrals,
		Challenges:  challenges,
		Settings:    settings,
		Withdrawals: withdrawals,
		Deposits:    deposits,
		Promotions:  promotions,
		Reconciler:  reconciler,
		Metrics:     m,
		Log:         log,
	}, handlers.AppOptions{
		GatewayToken:   cfg.GatewayToken,
		AllowedOrigins: cfg.AllowedOrigins,
		AdminUIDs:      cfg.AdminUIDs,
		Auth:           authClient,
		Gatherer:       reg,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("server error")
			stop()
		}
	}()

	log.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"origins": cfg.AllowedOrigins,
	}).Info("server running, gateway auth enforced on every route")

	<-ctx.Done()
	log.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
