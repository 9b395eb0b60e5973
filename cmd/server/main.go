package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	adminservice "certledger/internal/admin/service"
	"certledger/internal/events"
	identitymetrics "certledger/internal/identity/metrics"
	identityservice "certledger/internal/identity/service"
	accountstore "certledger/internal/identity/store/account"
	"certledger/internal/issuance/attestor"
	issuancemetrics "certledger/internal/issuance/metrics"
	issuanceservice "certledger/internal/issuance/service"
	certificatestore "certledger/internal/issuance/store/certificate"
	profilestore "certledger/internal/issuer/store/profile"
	notificationcache "certledger/internal/notification/cache"
	notificationmetrics "certledger/internal/notification/metrics"
	notificationservice "certledger/internal/notification/service"
	notificationstore "certledger/internal/notification/store/notification"
	onboardingmetrics "certledger/internal/onboarding/metrics"
	onboardingservice "certledger/internal/onboarding/service"
	requeststore "certledger/internal/onboarding/store/request"
	"certledger/internal/platform/config"
	"certledger/internal/platform/httpserver"
	"certledger/internal/platform/logger"
	"certledger/internal/platform/postgres"
	platformredis "certledger/internal/platform/redis"
	httptransport "certledger/internal/transport/http"
	"certledger/pkg/platform/tx"
	"certledger/pkg/token"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Stores: PostgreSQL when configured, in-memory otherwise (dev mode).
	var (
		accounts      identityservice.AccountStore
		accountReader adminservice.AccountReader
		profiles      interface {
			identityservice.IssuerProfileStore
			issuanceservice.ProfileFinder
			adminservice.ProfileReader
			onboardingservice.ProfileStore
		}
		certs         issuanceservice.CertificateStore
		certReader    adminservice.CertificateReader
		certCounter   identityservice.CertificateCounter
		requests      onboardingservice.RequestStore
		notifications notificationservice.NotificationStore
		runner        tx.Runner
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		accountStore := accountstore.NewPostgres(db)
		certStore := certificatestore.NewPostgres(db)
		accounts, accountReader = accountStore, accountStore
		profiles = profilestore.NewPostgres(db)
		certs, certReader, certCounter = certStore, certStore, certStore
		requests = requeststore.NewPostgres(db)
		notifications = notificationstore.NewPostgres(db)
		runner = tx.NewSQLRunner(db)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		accountStore := accountstore.NewInMemory()
		certStore := certificatestore.NewInMemory()
		accounts, accountReader = accountStore, accountStore
		profiles = profilestore.NewInMemory()
		certs, certReader, certCounter = certStore, certStore, certStore
		requests = requeststore.NewInMemory()
		notifications = notificationstore.NewInMemory()
		runner = tx.NewNoopRunner()
	}

	// Lifecycle event publisher, best-effort.
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers)
		if err != nil {
			log.Warn("kafka unavailable; lifecycle events disabled", "error", err)
		} else {
			defer kafka.Close()
			publisher = kafka
		}
	}

	notificationOpts := []notificationservice.Option{
		notificationservice.WithLogger(log),
		notificationservice.WithMetrics(notificationmetrics.New()),
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable; unread-count cache disabled", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		notificationOpts = append(notificationOpts,
			notificationservice.WithUnreadCache(notificationcache.NewRedis(redisClient.Client)))
	}
	notificationSvc := notificationservice.New(notifications, notificationOpts...)

	identitySvc := identityservice.New(accounts, profiles, certCounter,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New()),
	)
	onboardingSvc := onboardingservice.New(requests, identitySvc, profiles, runner,
		onboardingservice.WithLogger(log),
		onboardingservice.WithMetrics(onboardingmetrics.New()),
		onboardingservice.WithEvents(publisher),
	)

	var att attestor.Attestor = attestor.Disabled{}
	if cfg.Attestation.Endpoint != "" {
		att = attestor.NewHTTP(cfg.Attestation.Endpoint)
	} else {
		log.Warn("ATTESTATION_ENDPOINT not set; certificates will be issued unattested")
	}
	issuanceSvc := issuanceservice.New(certs, profiles, att, notificationSvc,
		issuanceservice.WithLogger(log),
		issuanceservice.WithMetrics(issuancemetrics.New()),
		issuanceservice.WithEvents(publisher),
		issuanceservice.WithAttestTimeout(cfg.Attestation.Timeout),
	)
	adminSvc := adminservice.New(accountReader, profiles, certReader, requests, identitySvc,
		adminservice.WithLogger(log))

	tokens := token.NewManager(cfg.JWTSigningKey, cfg.JWTTTL)
	router := httptransport.NewRouter(httptransport.Handlers{
		Auth:          httptransport.NewAuthHandler(identitySvc, tokens, log),
		Onboarding:    httptransport.NewOnboardingHandler(onboardingSvc, log),
		Certificates:  httptransport.NewCertificateHandler(issuanceSvc, log),
		Notifications: httptransport.NewNotificationHandler(notificationSvc, log),
		Admin:         httptransport.NewAdminHandler(adminSvc, log),
	}, tokens, log)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting certledger", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
