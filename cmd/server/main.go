// Command server runs the digital credential platform API.
//
// main wires configuration into stores, services, and the HTTP router, then
// owns the process lifecycle. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dcp/internal/anchor"
	"dcp/internal/artifact"
	"dcp/internal/audit"
	"dcp/internal/authz"
	"dcp/internal/credential"
	credentialmetrics "dcp/internal/credential/metrics"
	"dcp/internal/identity"
	"dcp/internal/jwtauth"
	"dcp/internal/notify"
	"dcp/internal/org"
	"dcp/internal/platform/config"
	"dcp/internal/platform/httpserver"
	"dcp/internal/platform/logger"
	platformmetrics "dcp/internal/platform/metrics"
	"dcp/internal/platform/postgres"
	"dcp/internal/platform/redis"
	"dcp/internal/template"
	httptransport "dcp/internal/transport/http"
	"dcp/internal/vc"
	"dcp/internal/verification"
	verificationmetrics "dcp/internal/verification/metrics"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. An empty database URL selects in-memory stores for local
	// development; production always sets one.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres pool init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres init failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	var (
		identityStore     identity.Store
		orgStore          org.Store
		templateStore     template.Store
		credentialStore   credential.Store
		verificationStore verification.Store
	)
	if pool != nil {
		identityStore = identity.NewPostgresStore(pool)
		orgStore = org.NewPostgresStore(pool)
		templateStore = template.NewPostgresStore(pool)
		credentialStore = credential.NewPostgresStore(pool)
		verificationStore = verification.NewSQLStore(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		identityStore = identity.NewInMemoryStore()
		orgStore = org.NewInMemoryStore()
		templateStore = template.NewInMemoryStore()
		credentialStore = credential.NewInMemoryStore()
		verificationStore = verification.NewInMemoryStore()
	}

	// Audit event stream.
	var publisher audit.Publisher = audit.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err != nil {
			log.Error("kafka publisher init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = audit.Fanout{publisher, kafkaPublisher}
	}
	if cfg.AuditBuffer > 0 {
		// Queue events through a worker so sink delivery never sits on
		// the request path.
		inbox := make(chan audit.Event, cfg.AuditBuffer)
		worker := audit.NewWorker(audit.SinkStore{Sink: publisher}, inbox)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		publisher = audit.NewChannelPublisher(inbox, log)
	}

	// Core services.
	identities := identity.New(identityStore, identity.WithLogger(log))
	orgs := org.New(orgStore, org.WithLogger(log))
	evaluator := authz.NewEvaluator(orgs)
	templates := template.New(templateStore, evaluator, template.WithLogger(log))

	credentialOpts := []credential.Option{
		credential.WithLogger(log),
		credential.WithMetrics(credentialmetrics.New()),
		credential.WithAuditPublisher(publisher),
	}
	var anchors *anchor.Service
	if cfg.Ledger.Endpoint != "" {
		var ledger anchor.Ledger = anchor.NewBreakerLedger(
			anchor.NewHTTPLedger(cfg.Ledger.Endpoint, cfg.Ledger.ContractAddress, cfg.Ledger.RequestTimeout))
		cache, err := redis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		if cache != nil {
			defer cache.Close()
			ledger = anchor.NewCachedLedger(ledger, cache, cfg.Ledger.CacheTTL)
		}
		anchors = anchor.New(ledger, anchor.WithLogger(log))
		credentialOpts = append(credentialOpts, credential.WithAnchorer(anchors))
	} else {
		log.Warn("no ledger configured, credentials are issued without anchoring")
		anchors = anchor.New(anchor.NopLedger{})
	}

	var notifier credential.Notifier = notify.NewLogNotifier(log)
	if cfg.NotifyEndpoint != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyEndpoint, log)
	}
	credentialOpts = append(credentialOpts, credential.WithNotifier(notifier))

	var artifacts credential.ArtifactRequester = artifact.NewNoopRequester(log)
	if cfg.RendererEndpoint != "" {
		artifacts = artifact.NewHTTPRequester(cfg.RendererEndpoint, cfg.PublicBaseURL+"/artifacts/callback", log)
	}
	credentialOpts = append(credentialOpts, credential.WithArtifactRequester(artifacts))

	credentials := credential.New(credentialStore, templateStore, identities, orgs, evaluator, cfg.BaseVerificationURL, credentialOpts...)

	verifications := verification.New(credentials, anchors, verificationStore,
		verification.WithLogger(log),
		verification.WithMetrics(verificationmetrics.New()),
		verification.WithAuditPublisher(publisher),
	)

	exporter := vc.New(orgs, cfg.PublicBaseURL, vc.WithLogger(log))
	tokens := jwtauth.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTExpiry)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Auth:           httptransport.NewAuthHandler(identities, tokens, log),
		Orgs:           httptransport.NewOrgHandler(orgs, log),
		Templates:      httptransport.NewTemplateHandler(templates, log),
		Credentials:    httptransport.NewCredentialHandler(credentials, exporter, log),
		Verify:         httptransport.NewVerifyHandler(verifications, anchors, log),
		RequireAuth:    httptransport.RequireAuth(tokens, identities, log),
		CallbackSecret: cfg.CallbackSecret,
		HTTPMetrics:    platformmetrics.NewHTTP(),
		Logger:         log,
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting dcp server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
