// Package api WarpTrace API
//
//	@title			WarpTrace API
//	@version		1.0
//	@description	API for uploading access logs, running anomaly analysis, and reading analysis results
//	@termsOfService	http://swagger.io/terms/
//
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
//
// @host		localhost:8000
// @BasePath	/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				JWT obtained from /api/login, sent as "Bearer <token>"
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"warptrace/config"
	"warptrace/core"
	"warptrace/service"
)

// rateLimiterEntry tracks one client's token bucket and when it last saw
// traffic, so idle entries can be evicted.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// authFailureEntry counts recent login failures from one address.
type authFailureEntry struct {
	count    int
	lastFail time.Time
}

// Analyzer is the slice of the analysis service the handlers consume.
type Analyzer interface {
	CreateUpload(filename, content string) (*core.Upload, error)
	Upload(uploadID string) (*core.Upload, error)
	Uploads() ([]*core.Upload, error)
	StartAnalysis(uploadID string) (*core.Upload, bool, error)
	BuildAnalysis(ctx context.Context, uploadID string) (*service.Analysis, error)
}

// HealthChecker reports database readiness for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// API serves the HTTP endpoints and owns their middleware state.
type API struct {
	router         *mux.Router
	server         *http.Server
	analyzer       Analyzer
	db             HealthChecker
	hub            *Hub
	config         *config.Config
	logger         *zap.SugaredLogger
	loginLimiter   *FixedWindowLimiter
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	authFailures   map[string]*authFailureEntry
	authFailuresMu sync.Mutex
	stopCh         chan struct{}
}

// NewAPI creates a new API server. hub may be nil when the websocket status
// stream is disabled.
func NewAPI(analyzer Analyzer, db HealthChecker, hub *Hub, config *config.Config, logger *zap.SugaredLogger) *API {
	api := &API{
		router:       mux.NewRouter(),
		analyzer:     analyzer,
		db:           db,
		hub:          hub,
		config:       config,
		logger:       logger,
		loginLimiter: NewFixedWindowLimiter(time.Minute, 10),
		rateLimiters: make(map[string]*rateLimiterEntry),
		authFailures: make(map[string]*authFailureEntry),
		stopCh:       make(chan struct{}),
	}
	api.setupRoutes()
	go api.cleanupRateLimiters()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	// OPTIONS is registered on every /api route so preflights reach the CORS
	// middleware; mux skips middleware entirely on a method mismatch.
	a.router.HandleFunc("/api/login", a.login).Methods("POST", "OPTIONS")
	a.router.HandleFunc("/api/health", a.healthCheck).Methods("GET", "OPTIONS")

	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.jwtAuthMiddleware)
	protected.HandleFunc("/upload", a.upload).Methods("POST", "OPTIONS")
	protected.HandleFunc("/analyze/{id}", a.analyze).Methods("POST", "OPTIONS")
	protected.HandleFunc("/status/{id}", a.status).Methods("GET", "OPTIONS")
	protected.HandleFunc("/analysis/{id}", a.analysis).Methods("GET", "OPTIONS")
	protected.HandleFunc("/uploads", a.listUploads).Methods("GET", "OPTIONS")
	protected.HandleFunc("/ws", a.serveWs).Methods("GET")

	a.router.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	a.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
}

// Start serves plain HTTP on addr, blocking until shutdown or listener error.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:    addr,
		Handler: a.router,
	}
	return a.server.ListenAndServe()
}

// StartTLS serves HTTPS on addr with the given certificate pair.
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	a.server = &http.Server{
		Addr:    addr,
		Handler: a.router,
	}
	return a.server.ListenAndServeTLS(certFile, keyFile)
}

// Stop halts the limiter janitor and shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (a *API) Handler() http.Handler {
	return a.router
}
