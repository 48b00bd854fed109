package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"donation-api/internal/archive"
	"donation-api/internal/checkout"
	"donation-api/internal/config"
	"donation-api/internal/handlers"
	"donation-api/internal/middleware"
	"donation-api/internal/payments"
	"donation-api/internal/reconcile"
	"donation-api/internal/repository"
	ws "donation-api/internal/websocket"
)

func main() {
	log.Println("Starting donation API server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load Configuration
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	// Connect to the Database
	db, err := repository.InitDB(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatal("cannot connect to database:", err)
	}
	defer db.Close()
	log.Printf("Successfully connected to the database (%s)!", cfg.DBDriver)

	donations := repository.NewDonationRepo(db)
	webhooks := repository.NewWebhookRepo(db)
	campaigns := repository.NewCampaignRepo(db)
	users := repository.NewUserRepo(db)

	if _, err := campaigns.Ensure(ctx, cfg.DefaultCampaign); err != nil {
		log.Printf("could not ensure campaign %q, donations will be recorded without one: %v", cfg.DefaultCampaign, err)
	}
	if err := handlers.EnsureAdmin(ctx, users, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal("cannot create bootstrap admin:", err)
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		log.Fatal("cannot set up webhook archive:", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	stripe := payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.AppURL)
	flutterwave := payments.NewFlutterwave(cfg.FlutterwavePublicKey, cfg.FlutterwaveSecretKey,
		cfg.FlutterwaveWebhookSecret, cfg.FlutterwaveBaseURL, nil)
	midtrans := payments.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)

	service := reconcile.NewService(donations, campaigns, cfg.DefaultCampaign, hub)

	processor := reconcile.NewProcessor(service, webhooks, archiver)
	processor.Register(payments.ProviderStripe, stripe)
	processor.Register(payments.ProviderFlutterwave, flutterwave)
	processor.Register(payments.ProviderMidtrans, midtrans)

	confirmer := checkout.NewConfirmer(service)
	confirmer.Register(payments.ProviderStripe, stripe, false)
	confirmer.Register(payments.ProviderMidtrans, midtrans, true)

	checkoutHandler := handlers.NewCheckoutHandler(map[string]payments.Initiator{
		payments.ProviderStripe:      stripe,
		payments.ProviderFlutterwave: flutterwave,
		payments.ProviderMidtrans:    midtrans,
	}, stripe)
	donationHandler := handlers.NewDonationHandler(confirmer, flutterwave, service)
	webhookHandler := handlers.NewWebhookHandler(processor, map[string]payments.SignatureVerifier{
		payments.ProviderStripe:      stripe,
		payments.ProviderFlutterwave: flutterwave,
		payments.ProviderMidtrans:    midtrans,
	})
	statsHandler := handlers.NewStatsHandler(donations)
	adminHandler := handlers.NewAdminHandler(donations, webhooks, processor)
	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret)
	wsHandler := handlers.NewWebSocketHandler(hub, cfg.Origins())

	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg.Origins())))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/ws/donations", wsHandler.ServeWs)

	// All API routes under /api
	api := r.Group("/api")
	{
		api.POST("/checkout/quote", checkoutHandler.Quote)
		api.GET("/checkout/options", checkoutHandler.Options)
		api.POST("/payments/intents", checkoutHandler.CreateIntent)
		api.POST("/payments/checkout-session", checkoutHandler.CreateCheckoutSession)
		api.POST("/payments/flutterwave/verify", donationHandler.VerifyFlutterwave)
		api.POST("/donations/confirm", donationHandler.Confirm)
		api.GET("/stats", statsHandler.GetStats)

		hooks := api.Group("/webhooks")
		{
			hooks.POST("/stripe", webhookHandler.Receive(payments.ProviderStripe))
			hooks.POST("/flutterwave", webhookHandler.Receive(payments.ProviderFlutterwave))
			hooks.POST("/midtrans", webhookHandler.Receive(payments.ProviderMidtrans))
		}

		api.POST("/auth/login", authHandler.Login)

		// Protected Endpoint
		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			admin.POST("/users", authHandler.CreateAdmin)
			admin.GET("/donations", adminHandler.ListDonations)
			admin.GET("/webhooks", adminHandler.ListWebhooks)
			admin.POST("/webhooks/:id/replay", adminHandler.Replay)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("server shutdown:", err)
	}
}

func newArchiver(ctx context.Context, cfg config.Config) (reconcile.Archiver, error) {
	switch cfg.ArchiveBackend {
	case "s3":
		return archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:          cfg.ArchiveBucket,
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
		})
	case "supabase":
		return archive.NewSupabaseArchiver(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.ArchiveBucket), nil
	default:
		return nil, nil
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "Stripe-Signature", "verif-hash")
	return c
}
