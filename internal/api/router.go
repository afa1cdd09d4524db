package api

import (
	"log"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scribely/backend/internal/ai"
	"github.com/scribely/backend/internal/api/handlers"
	"github.com/scribely/backend/internal/auth"
	"github.com/scribely/backend/internal/billing"
	"github.com/scribely/backend/internal/cache"
	"github.com/scribely/backend/internal/config"
	"github.com/scribely/backend/internal/database"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/middleware"
	"github.com/scribely/backend/internal/quota"
	"github.com/scribely/backend/internal/repository"
)

// NewRouter creates and configures the main router. db and redisCache may
// be nil; the quota chain and the entitlement resolver degrade gracefully
// when a backend is not configured.
func NewRouter(cfg *config.Config, db *database.DB, redisCache *cache.Redis) *chi.Mux {
	r := chi.NewRouter()

	// Durable entitlement storage (optional)
	var resolverStore entitlement.AccountStore
	var billingStore billing.AccountStore
	if db != nil {
		repo := repository.NewEntitlementRepository(db)
		resolverStore = repo
		billingStore = repo
	}

	// Counter store chain: REST backend first, redis second; unconfigured
	// backends are skipped by the chain itself
	counterStore := quota.NewChain(
		quota.NewUpstashStore(cfg.KVRestURL, cfg.KVRestToken),
		quota.NewRedisStore(redisCache),
	)

	// Entitlement resolution and the quota gate
	cookies := entitlement.NewCookieCodec(cfg.SessionSecret, cfg.IsProduction())
	resolver := entitlement.NewResolver(resolverStore)
	gate := quota.NewGate(resolver, counterStore)

	// Session auth (tokens are minted by the external login flow)
	jwtService := auth.NewJWTService(cfg.SessionSecret, 24*time.Hour)
	authMiddleware := auth.NewAuthMiddleware(jwtService)

	// Payment provider (optional)
	var provider billing.PaymentProvider
	if p, err := billing.NewStripeProvider(cfg.StripeSecretKey); err == nil {
		provider = p
	} else {
		log.Printf("[api] stripe disabled: %v", err)
	}
	reconciler := billing.NewReconciler(provider, billingStore)

	// Generation provider
	openAIClient := ai.NewOpenAIClientWithOptions(cfg.OpenAIAPIKey, "", cfg.OpenAITimeout)
	transformer := ai.NewTransformService(openAIClient, cfg.OpenAIModel, cfg.OpenAIFallbackModel)

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORSWithOrigins(cfg.CORSOrigins))
	r.Use(authMiddleware.OptionalAuth)

	// Initialize handlers
	healthHandler := handlers.NewHealthChecker(db, redisCache)
	transformHandler := handlers.NewTransformHandler(gate, transformer, cookies, cfg.OpenAIAPIKey != "", cfg.IsProduction())
	usageHandler := handlers.NewUsageHandler(gate, cookies)
	accountHandler := handlers.NewAccountHandler(cookies)
	billingHandler := handlers.NewBillingHandler(reconciler, provider, cookies, cfg)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", handlers.LivenessProbe)
	r.Get("/health/ready", healthHandler.ReadinessProbe)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ai/transform", transformHandler.Transform)
		r.Get("/usage", usageHandler.GetUsage)
		r.Get("/account", accountHandler.GetAccount)

		r.Route("/billing", func(r chi.Router) {
			r.Get("/checkout", billingHandler.Checkout)
			r.Post("/checkout", billingHandler.Checkout)
			r.Get("/confirm", billingHandler.Confirm)
			r.Post("/webhook", billingHandler.Webhook)
			r.Get("/portal", billingHandler.Portal)
			r.Get("/signout", billingHandler.Signout)
		})
	})

	return r
}
