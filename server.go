package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/middlewares"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"github.com/reelfund/donors_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("donors-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// mergeConfirmTTL bounds how long a previewed merge stays confirmable.
const mergeConfirmTTL = 15 * time.Minute

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// bindJSON wraps ShouldBindJSON with field-level validation messages.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}

		admin, err := models.GetAdminByUsername(c.Request.Context(), req.Username)
		if err != nil || admin.IsActive == nil || !*admin.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := utils.ComparePassword(admin.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		token, err := utils.JwtGenerate(admin.ID, string(admin.Role))
		if err != nil {
			config.LogError(logger, "server.go", "loginHandler", "generate token", admin.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
			return
		}
		if err := config.SetRedisValue("Token:"+token, admin.Username, 24*time.Hour); err != nil {
			config.LogError(logger, "server.go", "loginHandler", "store session", admin.Username, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not create session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"username": admin.Username,
			"role":     admin.Role,
		})
	}
}

// authorizeSuperAdmin gates the destructive ops endpoints. Support admins can
// read the needs-review queue but never run dedupe or merges.
func authorizeSuperAdmin(ctx context.Context) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}
	if utils.GetIsSuperAdminFromContext(ctx) {
		return nil
	}
	admin, err := models.GetAdminByUsername(ctx, username)
	if err != nil {
		return errors.New("unauthorized")
	}
	if admin.Role != models.AdminRoleSuper {
		return errors.New("unauthorized")
	}
	return nil
}

func rewardDedupeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		if err := authorizeSuperAdmin(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "reward-dedupe")
		defer span.End()

		db := config.GetDB()
		release, err := workflow.AcquireOperationLock(ctx, db, logger, "reward-dedupe")
		if err != nil {
			if errors.Is(err, workflow.ErrOperationInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "a reward dedupe run is already in progress"})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		defer release()

		summary, err := workflow.RunRewardDedupe(ctx, db, logger)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"summary":        summary,
			"correlation_id": cid,
		})
	}
}

func needsReviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB()
		ctx := c.Request.Context()

		var rewards []models.Reward
		if err := db.WithContext(ctx).
			Where("needs_review = true").
			Order("id").
			Find(&rewards).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var importErrors []models.RewardImportError
		if err := db.WithContext(ctx).
			Where("resolved = false").
			Order("id").
			Find(&importErrors).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"rewards":       rewards,
			"import_errors": importErrors,
		})
	}
}

type resolveImportErrorRequest struct {
	Id int `json:"id" binding:"required"`
}

// resolveImportErrorHandler closes one needs-review queue row and clears the
// review flag on the linked reward, if any.
func resolveImportErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeSuperAdmin(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req resolveImportErrorRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		if err := utils.ValidateResourceId[models.RewardImportError](ctx, req.Id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "import error not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		db := config.GetDB()
		var row models.RewardImportError
		if err := db.WithContext(ctx).First(&row, req.Id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := db.WithContext(ctx).Model(&models.RewardImportError{}).
			Where("id = ?", row.ID).
			Update("resolved", true).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if row.RewardId != nil {
			if err := db.WithContext(ctx).Model(&models.Reward{}).
				Where("id = ?", *row.RewardId).
				Update("needs_review", false).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"id": row.ID, "resolved": true})
	}
}

type mergeRequest struct {
	SourceEmail  string `json:"source_email" binding:"required"`
	TargetEmail  string `json:"target_email" binding:"required"`
	ConfirmToken string `json:"confirm_token"`
}

func validateMergeEmails(c *gin.Context, req *mergeRequest) bool {
	if !utils.IsValidEmail(utils.NormalizeEmail(req.SourceEmail)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_email is not a valid email"})
		return false
	}
	if !utils.IsValidEmail(utils.NormalizeEmail(req.TargetEmail)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_email is not a valid email"})
		return false
	}
	return true
}

// mergeConfirmKey binds a confirm token to the exact donor pair previewed,
// so a token can never authorize a different merge.
func mergeConfirmKey(token string) string {
	return "MergeConfirm:" + token
}

func mergeConfirmValue(sourceEmail, targetEmail string) string {
	return utils.NormalizeEmail(sourceEmail) + "|" + utils.NormalizeEmail(targetEmail)
}

func mergePreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		if err := authorizeSuperAdmin(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req mergeRequest
		if !bindJSON(c, &req) {
			return
		}
		if !validateMergeEmails(c, &req) {
			return
		}

		preview, err := workflow.PreviewDonorMerge(c.Request.Context(), config.GetDB(), req.SourceEmail, req.TargetEmail)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrorRecordNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		confirmToken := uuid.NewString()
		if err := config.SetRedisValue(mergeConfirmKey(confirmToken), mergeConfirmValue(req.SourceEmail, req.TargetEmail), mergeConfirmTTL); err != nil {
			config.LogError(logger, "server.go", "mergePreviewHandler", "store confirm token", req.SourceEmail, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not issue confirm token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"preview":            preview,
			"confirm_token":      confirmToken,
			"confirm_expires_in": mergeConfirmTTL.String(),
		})
	}
}

func mergeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		if err := authorizeSuperAdmin(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req mergeRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.ConfirmToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confirm_token is required"})
			return
		}
		if !validateMergeEmails(c, &req) {
			return
		}

		stored, exists, err := config.GetRedisValue(mergeConfirmKey(req.ConfirmToken))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not verify confirm token"})
			return
		}
		if !exists || stored != mergeConfirmValue(req.SourceEmail, req.TargetEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confirm_token is missing, expired or does not match this donor pair"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "donor-merge")
		defer span.End()

		db := config.GetDB()
		release, err := workflow.AcquireOperationLock(ctx, db, logger, "donor-merge")
		if err != nil {
			if errors.Is(err, workflow.ErrOperationInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "a donor merge is already in progress"})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		defer release()

		// One-shot: a confirm token authorizes exactly one merge attempt.
		// Consumed only once the lock is held, so a concurrent-run rejection
		// does not burn the token.
		if err := config.RemoveRedisKey(mergeConfirmKey(req.ConfirmToken)); err != nil {
			logger.Warn("could not invalidate confirm token: " + err.Error())
		}

		operator, _ := utils.GetOperatorFromContext(ctx)
		result, err := workflow.MergeDonorAccounts(ctx, db, logger, req.SourceEmail, req.TargetEmail, operator)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, utils.ErrorRecordNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"result":         result,
			"correlation_id": cid,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(middlewares.CorrelationIdMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/login", loginHandler())
	// Ops tooling: reconciliation procedures for the legacy migration.
	r.POST("/internal/ops/rewards/dedupe", rewardDedupeHandler())
	r.GET("/internal/ops/rewards/needs-review", needsReviewHandler())
	r.POST("/internal/ops/rewards/needs-review/resolve", resolveImportErrorHandler())
	r.POST("/internal/ops/donors/merge-preview", mergePreviewHandler())
	r.POST("/internal/ops/donors/merge", mergeHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
