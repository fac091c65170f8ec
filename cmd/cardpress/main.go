package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/printmint/cardpress/internal/config"
	"github.com/printmint/cardpress/internal/database"
	"github.com/printmint/cardpress/internal/fal"
	"github.com/printmint/cardpress/internal/httpapi"
	"github.com/printmint/cardpress/internal/membership"
	"github.com/printmint/cardpress/internal/payments"
	"github.com/printmint/cardpress/internal/pricing"
	"github.com/printmint/cardpress/internal/repository"
	"github.com/printmint/cardpress/internal/service"
	"github.com/printmint/cardpress/internal/storage"
	"github.com/printmint/cardpress/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	tiers, err := pricing.ParseTiers(cfg.PricingTiersSpec)
	if err != nil {
		log.Fatalf("pricing tiers: %v", err)
	}
	table, err := pricing.NewTable(tiers, pricing.NoMatchPolicy(cfg.PricingOnNoMatch), cfg.PricingFallbackCents)
	if err != nil {
		log.Fatalf("pricing table: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	imageRepo := repository.NewImageRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	falClient := fal.NewClient(cfg, logr)
	membershipClient := membership.NewClient(cfg.MembershipAPIURL, cfg.RequestTimeout, logr)
	stripeClient := payments.NewClient(payments.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.PaymentCurrency,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	})

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	membershipService := service.NewMembershipService(cfg, logr, membershipClient, userRepo)
	generationService := service.NewGenerationService(cfg, logr, userRepo, imageRepo, falClient, uploader, membershipService)
	orderService := service.NewOrderService(logr, table, orderRepo, stripeClient)

	server := httpapi.NewServer(cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, generationService, orderService, stripeClient, sessionRepo, sessionRepo)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
