// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Obagson/code-nest/internal/billing"
	"github.com/Obagson/code-nest/internal/config"
	"github.com/Obagson/code-nest/internal/health"
	"github.com/Obagson/code-nest/internal/ledger"
	"github.com/Obagson/code-nest/internal/logging"
	"github.com/Obagson/code-nest/internal/metrics"
	"github.com/Obagson/code-nest/internal/profile"
	"github.com/Obagson/code-nest/internal/ratelimit"
	"github.com/Obagson/code-nest/internal/realtime"
	"github.com/Obagson/code-nest/internal/reconciliation"
	"github.com/Obagson/code-nest/internal/security"
	"github.com/Obagson/code-nest/internal/session"
	"github.com/Obagson/code-nest/internal/traces"
	"github.com/Obagson/code-nest/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	ledger       *ledger.Ledger
	profiles     *profile.Service
	sessions     *session.Service
	billing      *billing.Service
	reconciler   *reconciliation.Service
	reconTimer   *reconciliation.Timer
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	health       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	tracesStop   func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		health: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		ledgerStore  ledger.Store
		profileStore profile.Store
		sessionStore session.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		ledgerStore = ledger.NewPostgresStore(db)
		profileStore = profile.NewPostgresStore(db)
		sessionStore = session.NewPostgresStore(db)

		s.health.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		ledgerStore = ledger.NewMemoryStore()
		profileStore = profile.NewMemoryStore()
		sessionStore = session.NewMemoryStore()
	}

	s.ledger = ledger.New(ledgerStore)
	s.profiles = profile.NewService(profileStore)

	s.health.Register("custody", func(ctx context.Context) health.Status {
		if _, err := s.ledger.CustodyBalance(ctx); err != nil {
			return health.Status{Name: "custody", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "custody", Healthy: true}
	})

	// Conservation audit over the ledger, checked periodically and on demand
	s.reconciler = reconciliation.NewService(s.ledger)
	s.reconTimer = reconciliation.NewTimer(s.reconciler, s.logger)

	// Realtime hub for WebSocket event streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	s.sessions = session.NewService(
		sessionStore,
		&sessionLedgerAdapter{s.ledger},
		s.profiles,
		s.realtimeHub,
		cfg.ArbiterAccounts,
	)
	if len(cfg.ArbiterAccounts) > 0 {
		s.logger.Info("dispute resolution restricted", "arbiters", len(cfg.ArbiterAccounts))
	} else {
		s.logger.Info("dispute resolution open to any caller")
	}

	// Stripe billing (balance top-ups); demo deposits take over when absent
	if cfg.StripeSecretKey != "" {
		s.billing = billing.NewService(
			s.ledger,
			cfg.StripeSecretKey,
			cfg.StripeWebhookSecret,
			cfg.MinTopUpCents,
			cfg.MaxTopUpCents,
		)
		s.logger.Info("stripe top-ups enabled",
			"min_cents", cfg.MinTopUpCents,
			"max_cents", cfg.MaxTopUpCents,
		)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// sessionLedgerAdapter bridges the ledger into the session service and
// translates its insufficiency error into the session error taxonomy.
type sessionLedgerAdapter struct {
	ledger *ledger.Ledger
}

func (a *sessionLedgerAdapter) EscrowLock(ctx context.Context, account string, amountCents int64, reference string) error {
	return mapLedgerErr(a.ledger.EscrowLock(ctx, account, amountCents, reference))
}

func (a *sessionLedgerAdapter) ReleaseEscrow(ctx context.Context, account string, amountCents int64, reference string) error {
	return mapLedgerErr(a.ledger.ReleaseEscrow(ctx, account, amountCents, reference))
}

func (a *sessionLedgerAdapter) RefundEscrow(ctx context.Context, account string, amountCents int64, reference string) error {
	return mapLedgerErr(a.ledger.RefundEscrow(ctx, account, amountCents, reference))
}

func (a *sessionLedgerAdapter) SplitEscrow(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error {
	return mapLedgerErr(a.ledger.SplitEscrow(ctx, creator, partner, creatorCents, partnerCents, reference))
}

func mapLedgerErr(err error) error {
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %v", session.ErrInsufficientFunds, err)
	}
	return err
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limitCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time event streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// Stripe webhook lives outside the identity middleware; Stripe
	// authenticates with its signature header, not a developer account.
	var billingHandler *billing.Handler
	if s.billing != nil {
		billingHandler = billing.NewHandler(s.billing)
		billingHandler.RegisterWebhook(s.router.Group("/v1"))
	}

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :account URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AccountParamMiddleware())
	v1.Use(validation.CallerMiddleware())

	sessionHandler := session.NewHandler(s.sessions)
	profileHandler := profile.NewHandler(s.profiles)

	// Demo deposits replace Stripe in development so balances can be
	// funded without a billing provider.
	demoDeposits := s.cfg.IsDevelopment() && s.billing == nil
	ledgerHandler := ledger.NewHandler(s.ledger, demoDeposits)
	if demoDeposits {
		s.logger.Info("demo deposits enabled")
	}

	// PUBLIC ROUTES (no identity required)
	// These are the discovery/read endpoints
	sessionHandler.RegisterRoutes(v1)
	profileHandler.RegisterRoutes(v1)
	ledgerHandler.RegisterRoutes(v1)
	v1.GET("/reconciliation", s.reconciliationHandler)

	// PROTECTED ROUTES (require caller identity)
	// These mutate session and balance state
	protected := v1.Group("")
	protected.Use(validation.RequireCaller())
	{
		sessionHandler.RegisterProtectedRoutes(protected)
		if billingHandler != nil {
			billingHandler.RegisterRoutes(protected)
		}
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.health.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) reconciliationHandler(c *gin.Context) {
	result, err := s.reconciler.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "CodeNest",
		"description": "Paid collaborative coding sessions with escrowed payment",
		"version":     "0.1.0",
		"currency":    "USD cents",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint is configured)
	tracesStop, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesStop = tracesStop
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Periodic conservation checks
	go s.reconTimer.Start(runCtx)

	// Export connection pool stats when running on Postgres
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.reconTimer != nil {
		s.reconTimer.Stop()
	}

	// Flush traces
	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
