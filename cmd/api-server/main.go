package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obakengshepherd/RiskSentinel/configs"
	"github.com/obakengshepherd/RiskSentinel/internal/alerts"
	"github.com/obakengshepherd/RiskSentinel/internal/analytics"
	"github.com/obakengshepherd/RiskSentinel/internal/auth"
	"github.com/obakengshepherd/RiskSentinel/internal/cache"
	"github.com/obakengshepherd/RiskSentinel/internal/events"
	"github.com/obakengshepherd/RiskSentinel/internal/httpapi"
	"github.com/obakengshepherd/RiskSentinel/internal/ingestion"
	"github.com/obakengshepherd/RiskSentinel/internal/models"
	"github.com/obakengshepherd/RiskSentinel/internal/repositories"
	"github.com/obakengshepherd/RiskSentinel/internal/rules"
	"github.com/obakengshepherd/RiskSentinel/internal/scoring"
)

const version = "1.0.0"

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting RiskSentinel API Server")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Redis is optional; every cache consumer falls back to the database.
	cacheClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without cache")
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	// Kafka is optional at boot; health reports degraded until the brokers
	// come up and the producer is restarted.
	producer := events.NewProducer(cfg.Kafka)
	if err := producer.Start(); err != nil {
		log.Warn().Err(err).Msg("Kafka unavailable, event fan-out disabled")
	}
	defer producer.Stop()

	// Initialize repositories
	txRepo := repositories.NewTransactionRepository(db)
	riskScoreRepo := repositories.NewRiskScoreRepository(db)
	ruleRepo := repositories.NewRuleRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	seedDefaultRules(ruleRepo)

	// Scoring pipeline
	ruleEngine := rules.NewEngine()
	velocity := scoring.NewVelocityCalculator(txRepo, cfg.Velocity)
	anomaly := scoring.NewAnomalyCalculator(txRepo, cfg.Anomaly)
	mlScorer := scoring.NewMLScorer(cfg.ML)
	engine := scoring.NewEngine(ruleRepo, ruleEngine, velocity, anomaly, mlScorer, cfg.Risk)

	// Services
	jwtManager := auth.NewJWTManager(cfg.Auth)
	ingestionService := ingestion.NewService(db, txRepo, riskScoreRepo, alertRepo, auditRepo, engine, producer, cacheClient, cfg.Amount)
	alertService := alerts.NewService(alertRepo, auditRepo, producer)
	analyticsService := analytics.NewService(txRepo, riskScoreRepo, alertRepo, cacheClient)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	rateLimiter := newRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	startedAt := time.Now()
	setupRoutes(router, cfg, jwtManager, db, producer, ingestionService, alertService, analyticsService, ruleRepo, auditRepo, startedAt)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// seedDefaultRules installs the baseline rule set on an empty rules table.
func seedDefaultRules(ruleRepo *repositories.RuleRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := ruleRepo.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check rule table, skipping seed")
		return
	}
	if count > 0 {
		return
	}

	seeded := 0
	for _, rule := range rules.DefaultRules() {
		if err := ruleRepo.Create(ctx, rule); err != nil {
			log.Warn().Err(err).Str("code", rule.Code).Msg("Failed to seed rule")
			continue
		}
		seeded++
	}

	log.Info().Int("count", seeded).Msg("Seeded default fraud rules")
}

func setupRoutes(
	router *gin.Engine,
	cfg *configs.Config,
	jwtManager *auth.JWTManager,
	db *repositories.Database,
	producer *events.Producer,
	ingestionService *ingestion.Service,
	alertService *alerts.Service,
	analyticsService *analytics.Service,
	ruleRepo *repositories.RuleRepository,
	auditRepo *repositories.AuditRepository,
	startedAt time.Time,
) {
	health := healthHandler(db, producer, startedAt)
	router.GET("/health", health)

	v1 := router.Group("/api/v1")
	v1.GET("/health", health)

	// Token exchange (public)
	v1.POST("/auth/token", tokenHandler(jwtManager, cfg.Auth))

	protected := v1.Group("")
	protected.Use(auth.Middleware(jwtManager, cfg.Auth.Enabled))

	txRoutes := protected.Group("/transactions")
	{
		txRoutes.POST("", submitTransactionHandler(ingestionService))
		txRoutes.GET("", listTransactionsHandler(ingestionService))
		txRoutes.GET("/:id", getTransactionHandler(ingestionService))
	}

	alertRoutes := protected.Group("/alerts")
	{
		alertRoutes.GET("", listAlertsHandler(alertService))
		alertRoutes.GET("/:id", getAlertHandler(alertService))
		alertRoutes.PATCH("/:id", updateAlertHandler(alertService))
	}

	ruleRoutes := protected.Group("/rules")
	if cfg.Auth.Enabled {
		// Rule management is restricted when an identity provider is wired.
		ruleRoutes.Use(auth.RoleMiddleware("admin", "analyst"))
	}
	{
		ruleRoutes.POST("", createRuleHandler(ruleRepo, auditRepo))
		ruleRoutes.GET("", listRulesHandler(ruleRepo))
		ruleRoutes.GET("/:id", getRuleHandler(ruleRepo))
		ruleRoutes.PUT("/:id", updateRuleHandler(ruleRepo, auditRepo, false))
		ruleRoutes.PATCH("/:id", updateRuleHandler(ruleRepo, auditRepo, true))
		ruleRoutes.DELETE("/:id", deactivateRuleHandler(ruleRepo, auditRepo))
	}

	dashboardRoutes := protected.Group("/dashboard")
	{
		dashboardRoutes.GET("/summary", dashboardSummaryHandler(analyticsService))
		dashboardRoutes.GET("/risk-trend", riskTrendHandler(analyticsService))
	}

	protected.GET("/audit-logs", recentAuditLogsHandler(auditRepo))
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimiter is a per-IP token bucket refilled at the configured rate.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	burst    int
	window   time.Duration
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate, burst int, window time.Duration) *rateLimiter {
	if burst < 1 {
		burst = rate
	}
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    burst,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.burst - 1, lastSeen: now}
		return true
	}

	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":       "RATE_LIMITED",
					"message":    "rate limit exceeded",
					"request_id": c.GetString("request_id"),
				},
			})
			return
		}
		c.Next()
	}
}

// Handlers

func healthHandler(db *repositories.Database, producer *events.Producer, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbHealthy := db.HealthCheck(ctx) == nil
		kafkaHealthy := producer.Healthy()
		sent, errCount := producer.Counters()
		poolStats := db.Stats()

		status := "healthy"
		httpStatus := http.StatusOK
		switch {
		case !dbHealthy:
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		case !kafkaHealthy:
			status = "degraded"
		}

		c.JSON(httpStatus, gin.H{
			"status":         status,
			"version":        version,
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"checks": gin.H{
				"database": dbHealthy,
				"kafka":    kafkaHealthy,
			},
			"kafka_counters": gin.H{
				"sent":   sent,
				"errors": errCount,
			},
			"db_pool": gin.H{
				"total_conns": poolStats.TotalConns(),
				"idle_conns":  poolStats.IdleConns(),
			},
		})
	}
}

func tokenHandler(jwtManager *auth.JWTManager, cfg configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			APIKey  string `json:"api_key" binding:"required"`
			Subject string `json:"subject"`
			Role    string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, httpapi.Validation("api_key is required"))
			return
		}

		if cfg.APIKeyHash == "" || !auth.CheckAPIKey(req.APIKey, cfg.APIKeyHash) {
			httpapi.Respond(c, httpapi.Authentication("invalid API key"))
			return
		}

		subject := req.Subject
		if subject == "" {
			subject = "service"
		}
		role := req.Role
		if role == "" {
			role = "analyst"
		}

		token, err := jwtManager.GenerateToken(subject, role)
		if err != nil {
			httpapi.Respond(c, httpapi.Internal(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"token_type": "Bearer",
			"expires_in": int(jwtManager.Expiration().Seconds()),
		})
	}
}

func submitTransactionHandler(svc *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestion.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, httpapi.Validation(err.Error()))
			return
		}

		txn, score, err := svc.Submit(c.Request.Context(), &req, auth.APIActor(c))
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"transaction": txn,
			"risk_score":  score,
		})
	}
}

func listTransactionsHandler(svc *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := paginationParams(c)

		transactions, total, err := svc.List(c.Request.Context(), page, pageSize, c.Query("status_filter"), c.Query("sender_id"))
		if err != nil {
			httpapi.Respond(c, err)
			return
		}
		if transactions == nil {
			transactions = []*models.Transaction{}
		}

		c.JSON(http.StatusOK, models.PaginatedResponse{
			Data:       transactions,
			Pagination: models.Pagination{Page: page, PageSize: pageSize, Total: total},
		})
	}
}

func getTransactionHandler(svc *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid transaction id"))
			return
		}

		bundle, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, bundle)
	}
}

func listAlertsHandler(svc *alerts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := paginationParams(c)

		result, total, err := svc.List(c.Request.Context(), page, pageSize, c.Query("severity"), c.Query("status_filter"))
		if err != nil {
			httpapi.Respond(c, err)
			return
		}
		if result == nil {
			result = []*models.Alert{}
		}

		c.JSON(http.StatusOK, models.PaginatedResponse{
			Data:       result,
			Pagination: models.Pagination{Page: page, PageSize: pageSize, Total: total},
		})
	}
}

func getAlertHandler(svc *alerts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid alert id"))
			return
		}

		alert, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

func updateAlertHandler(svc *alerts.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid alert id"))
			return
		}

		var req alerts.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, httpapi.Validation(err.Error()))
			return
		}

		alert, err := svc.Update(c.Request.Context(), id, &req, auth.AnalystActor(c))
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

// Rule management

type ruleRequest struct {
	Code        string       `json:"code" binding:"required"`
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Weight      float64      `json:"weight" binding:"required"`
	Condition   models.JSONB `json:"condition" binding:"required"`
	IsActive    *bool        `json:"is_active"`
}

func (r *ruleRequest) validate() error {
	if !validRuleCode(r.Code) {
		return httpapi.Validation("code must be UPPER_SNAKE_CASE")
	}
	if r.Weight <= 0 || r.Weight > 1 {
		return httpapi.Validation("weight must be in (0, 1]")
	}
	if err := rules.ValidateCondition(r.Condition); err != nil {
		return httpapi.Validation("invalid condition: " + err.Error())
	}
	return nil
}

func validRuleCode(code string) bool {
	if code == "" {
		return false
	}
	for _, ch := range code {
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') && ch != '_' {
			return false
		}
	}
	return true
}

func createRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ruleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, httpapi.Validation(err.Error()))
			return
		}
		if err := req.validate(); err != nil {
			httpapi.Respond(c, err)
			return
		}

		rule := &models.FraudRule{
			Code:        req.Code,
			Name:        req.Name,
			Description: req.Description,
			Weight:      req.Weight,
			Condition:   req.Condition,
			IsActive:    true,
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}

		if err := ruleRepo.Create(c.Request.Context(), rule); err != nil {
			if errors.Is(err, repositories.ErrDuplicateRuleCode) {
				httpapi.Respond(c, httpapi.Conflict("rule code already exists"))
				return
			}
			httpapi.Respond(c, httpapi.Database("failed to create rule", err))
			return
		}

		auditRule(c, auditRepo, models.AuditActionRuleCreated, rule)
		c.JSON(http.StatusCreated, rule)
	}
}

func listRulesHandler(ruleRepo *repositories.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))

		result, err := ruleRepo.List(c.Request.Context(), activeOnly)
		if err != nil {
			httpapi.Respond(c, httpapi.Database("failed to list rules", err))
			return
		}
		if result == nil {
			result = []*models.FraudRule{}
		}

		c.JSON(http.StatusOK, gin.H{"rules": result})
	}
}

func getRuleHandler(ruleRepo *repositories.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid rule id"))
			return
		}

		rule, err := ruleRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrRuleNotFound) {
				httpapi.Respond(c, httpapi.NotFound("rule not found"))
				return
			}
			httpapi.Respond(c, httpapi.Database("failed to load rule", err))
			return
		}

		c.JSON(http.StatusOK, rule)
	}
}

type ruleUpdateRequest struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Weight      *float64     `json:"weight"`
	Condition   models.JSONB `json:"condition"`
	IsActive    *bool        `json:"is_active"`
}

// updateRuleHandler serves both PUT and PATCH. PUT requires the full mutable
// field set; PATCH applies only the fields present.
func updateRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository, partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid rule id"))
			return
		}

		var req ruleUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Respond(c, httpapi.Validation(err.Error()))
			return
		}

		if !partial && (req.Name == nil || req.Weight == nil || req.Condition == nil) {
			httpapi.Respond(c, httpapi.Validation("name, weight, and condition are required"))
			return
		}

		rule, err := ruleRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrRuleNotFound) {
				httpapi.Respond(c, httpapi.NotFound("rule not found"))
				return
			}
			httpapi.Respond(c, httpapi.Database("failed to load rule", err))
			return
		}

		if req.Name != nil {
			rule.Name = *req.Name
		}
		if req.Description != nil {
			rule.Description = *req.Description
		}
		if req.Weight != nil {
			if *req.Weight <= 0 || *req.Weight > 1 {
				httpapi.Respond(c, httpapi.Validation("weight must be in (0, 1]"))
				return
			}
			rule.Weight = *req.Weight
		}
		if req.Condition != nil {
			if err := rules.ValidateCondition(req.Condition); err != nil {
				httpapi.Respond(c, httpapi.Validation("invalid condition: "+err.Error()))
				return
			}
			rule.Condition = req.Condition
		}
		if req.IsActive != nil {
			rule.IsActive = *req.IsActive
		}

		if err := ruleRepo.Update(c.Request.Context(), rule); err != nil {
			if errors.Is(err, repositories.ErrRuleNotFound) {
				httpapi.Respond(c, httpapi.NotFound("rule not found"))
				return
			}
			httpapi.Respond(c, httpapi.Database("failed to update rule", err))
			return
		}

		auditRule(c, auditRepo, models.AuditActionRuleUpdated, rule)
		c.JSON(http.StatusOK, rule)
	}
}

func deactivateRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpapi.Respond(c, httpapi.Validation("invalid rule id"))
			return
		}

		if err := ruleRepo.Deactivate(c.Request.Context(), id); err != nil {
			if errors.Is(err, repositories.ErrRuleNotFound) {
				httpapi.Respond(c, httpapi.NotFound("rule not found"))
				return
			}
			httpapi.Respond(c, httpapi.Database("failed to deactivate rule", err))
			return
		}

		rule, err := ruleRepo.GetByID(c.Request.Context(), id)
		if err == nil {
			auditRule(c, auditRepo, models.AuditActionRuleDeactivated, rule)
		}

		c.JSON(http.StatusOK, gin.H{"message": "rule deactivated"})
	}
}

func auditRule(c *gin.Context, auditRepo *repositories.AuditRepository, action string, rule *models.FraudRule) {
	err := auditRepo.Create(c.Request.Context(), &models.AuditLog{
		Actor:  auth.AnalystActor(c),
		Action: action,
		Details: models.JSONB{
			"rule_id":   rule.ID.String(),
			"rule_code": rule.Code,
			"weight":    rule.Weight,
			"is_active": rule.IsActive,
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("rule_code", rule.Code).Msg("Failed to write rule audit log")
	}
}

// Dashboard

func dashboardSummaryHandler(svc *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := svc.DashboardSummary(c.Request.Context())
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func riskTrendHandler(svc *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		trend, err := svc.RiskTrend(c.Request.Context())
		if err != nil {
			httpapi.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"trend": trend})
	}
}

func recentAuditLogsHandler(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 500 {
				httpapi.Respond(c, httpapi.Validation("limit must be between 1 and 500"))
				return
			}
			limit = parsed
		}

		logs, err := auditRepo.GetRecent(c.Request.Context(), limit)
		if err != nil {
			httpapi.Respond(c, httpapi.Database("failed to list audit logs", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
	}
}

// Helpers

func paginationParams(c *gin.Context) (page, pageSize int) {
	page = getIntParam(c, "page", 1)
	pageSize = getIntParam(c, "page_size", 25)
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}
