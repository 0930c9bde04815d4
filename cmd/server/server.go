package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"

	"github.com/cavotieno/forgery-analyzer/internal/cache"
	"github.com/cavotieno/forgery-analyzer/internal/config"
	"github.com/cavotieno/forgery-analyzer/internal/controllers"
	"github.com/cavotieno/forgery-analyzer/internal/detector"
	"github.com/cavotieno/forgery-analyzer/internal/logging"
	"github.com/cavotieno/forgery-analyzer/internal/metrics"
	"github.com/cavotieno/forgery-analyzer/internal/middleware"
	"github.com/cavotieno/forgery-analyzer/internal/models"
	"github.com/cavotieno/forgery-analyzer/internal/views"
	"github.com/cavotieno/forgery-analyzer/migrations"
	"github.com/cavotieno/forgery-analyzer/templates"
)

const modelVersion = "1.0.0"

func run(cfg *config.Config) error {
	logger := logging.Init(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database ---------------
	logger.Info("connecting to database")
	db, err := models.NewDatabase(ctx, models.DefaultDatabaseConfig(cfg.Database.URL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := models.MigrateFS(cfg.Database.URL, migrations.FS, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database ready")

	// Model ---------------
	logger.Info("loading forgery detection model",
		"path", cfg.Model.Path,
		"device", cfg.Model.Device,
	)
	det, err := detector.NewONNXDetector(
		cfg.Model.Path,
		cfg.Model.MetadataPath,
		cfg.Model.ConfidenceThreshold,
		logging.ForService(logger, "detector"),
	)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer det.Close()

	// Services ---------------
	userService := models.NewUserService(db.Pool, cfg.Security.BcryptCost)
	sessionService := models.NewSessionService(db.Pool, cfg.Security.SessionDuration)
	analysisService := models.NewAnalysisService(db.Pool)

	results := cache.NewResults(cfg.Limits.ResultsCacheTTL)

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Templates ---------------
	homeTpl := views.MustParseFS(templates.FS, "pages/home.gohtml")
	signupTpl := views.MustParseFS(templates.FS, "pages/signup.gohtml")
	signinTpl := views.MustParseFS(templates.FS, "pages/signin.gohtml")
	dashboardTpl := views.MustParseFS(templates.FS, "pages/dashboard.gohtml")

	// Controllers ---------------
	apiCtrl := controllers.NewAPIController(
		analysisService,
		det,
		results,
		cfg.Limits,
		controllers.ModelInfo{
			Version:             modelVersion,
			Device:              cfg.Model.Device,
			ConfidenceThreshold: cfg.Model.ConfidenceThreshold,
			ImageSize:           det.Metadata().ImageSize,
		},
		cfg.Model.NumWorkers,
		logging.ForService(logger, "api"),
		m,
	)

	authCtrl := controllers.NewAuthController(
		userService,
		sessionService,
		signupTpl,
		signinTpl,
		cfg.Security.SessionCookieName,
		cfg.Security.SecureCookies,
	)

	dashCtrl := controllers.NewDashboardController(analysisService, homeTpl, dashboardTpl)

	// Middleware ---------------
	authMw := middleware.NewAuthMiddleware(sessionService, cfg.Security.SessionCookieName)
	rateLimiter := middleware.NewRateLimiter(cfg.Limits.RateLimitPerMinute)
	csrfMw := csrf.Protect(
		[]byte(cfg.Security.CSRFSecret),
		csrf.Secure(cfg.Security.SecureCookies),
		csrf.Path("/"),
	)

	// Router ---------------
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger, m))

	r.Get("/healthz", apiCtrl.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// JSON API, served unversioned and as v1
	api := chi.NewRouter()
	api.Use(rateLimiter.Handler)
	api.Post("/analyze", apiCtrl.Analyze)
	api.Post("/batch-analyze", apiCtrl.BatchAnalyze)
	api.Get("/results", apiCtrl.ListResults)
	api.Get("/results/{case_id}", apiCtrl.GetResult)
	api.Get("/statistics", apiCtrl.Statistics)
	api.Get("/health", apiCtrl.Health)
	r.Mount("/api", api)
	r.Mount("/api/v1", api)

	// HTML pages
	r.Group(func(r chi.Router) {
		r.Use(csrfMw)
		r.Use(authMw.SetUser)

		r.Get("/", dashCtrl.GetHome)

		r.Group(func(r chi.Router) {
			r.Use(authMw.RequireNoUser)
			r.Get("/signup", authCtrl.GetSignUp)
			r.Post("/signup", authCtrl.PostSignUp)
			r.Get("/signin", authCtrl.GetSignIn)
			r.Post("/signin", authCtrl.PostSignIn)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMw.RequireUser)
			r.Get("/dashboard", dashCtrl.GetDashboard)
			r.Post("/logout", authCtrl.PostLogout)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
