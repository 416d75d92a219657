package handler

import (
	"microcredit-gateway/internal/adapter/http/middleware"
	"microcredit-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	Resolver       ports.AccountResolver
	Issuer         ports.TokenIssuer
	Verifier       ports.TokenVerifier
	HashSvc        ports.HashService
	APIKeyHash     string                    // argon2id hash of the operator key; empty disables operator routes
	AltTokenHeader string                    // optional header carrying the raw token
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	MaxBodySize    int64              // 0 = unlimited
	OpenAPISpec    []byte
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(deps.MaxBodySize))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := NewDocsHandler(deps.OpenAPISpec)
	r.GET("/swagger", docs.UI)
	r.GET("/swagger/spec", docs.Spec)

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public ---
	tokenHandler := NewTokenHandler(deps.Issuer)
	v1.GET("/bank/pubkey", rl("pubkey"), tokenHandler.PublicKey)

	// --- Operator API key ---
	apiKey := middleware.APIKeyAuth(deps.HashSvc, deps.APIKeyHash, deps.Logger)
	v1.POST("/token/issue", apiKey, rl("token_issue"), tokenHandler.Issue)

	adminHandler := NewAdminHandler(deps.Ledger)
	admin := v1.Group("/admin", apiKey, rl("admin"))
	{
		admin.POST("/accounts", adminHandler.OpenAccount)
		admin.POST("/accounts/:id/adjust", adminHandler.Adjust)
		admin.GET("/accounts/:id/entries", adminHandler.Entries)
		admin.POST("/holds/release-expired", adminHandler.ReleaseExpired)
	}

	// --- Ephemeral token ---
	ephemeral := middleware.EphemeralAuth(deps.Verifier, deps.AltTokenHeader, deps.Logger)
	creditsHandler := NewCreditsHandler(deps.Ledger, deps.Resolver)
	credits := v1.Group("/credits", ephemeral)
	{
		credits.POST("/hold", rl("credits"), creditsHandler.Hold)
		credits.POST("/capture", rl("credits"), creditsHandler.Capture)
		credits.POST("/release", rl("credits"), creditsHandler.Release)
		credits.GET("/balance", rl("balance"), creditsHandler.Balance)
	}

	return r
}
