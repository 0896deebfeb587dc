package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	"codecheckout/internal/infrastructure"
	customMiddleware "codecheckout/internal/middleware"
	transport "codecheckout/internal/transport/http"
	"codecheckout/pkg/codecheckout"
	"codecheckout/pkg/contracts"
)

// AppName is reported in startup logs
const AppName = "codecheckout"

// Application represents the license server container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Client        *codecheckout.Client
	OTelProviders *infrastructure.OTelProviders
	ErrorHandler  *apperrors.ErrorHandler
	LicenseGate   *customMiddleware.LicenseGate
	Router        *chi.Mux
	Server        *http.Server

	listener net.Listener
}

// NewApplication wires telemetry, the license client and the HTTP router.
// opts are passed through to the license client.
func NewApplication(cfg *config.Config, logger *slog.Logger, opts ...codecheckout.Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	clientOpts := append([]codecheckout.Option{
		codecheckout.WithLogger(logger),
		codecheckout.WithTracer(otelProviders.Tracer),
		codecheckout.WithMeter(otelProviders.Meter),
	}, opts...)
	client, err := codecheckout.New(cfg, clientOpts...)
	if err != nil {
		_ = otelProviders.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize license client: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Client:        client,
		OTelProviders: otelProviders,
		ErrorHandler:  apperrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
	}

	if err := app.setupRouter(); err != nil {
		_ = client.Close(context.Background())
		_ = otelProviders.Shutdown(context.Background())
		return nil, err
	}
	app.createServer()

	return app, nil
}

// setupRouter builds the router. Ordering: RequestID, RealIP, OTel, TraceID,
// logging and recovery, then security headers and rate limiting.
func (a *Application) setupRouter() error {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}
	r.Use(otelMiddleware.Handler)
	r.Use(customMiddleware.TraceID)
	r.Use(apperrors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
	r.Use(customMiddleware.SecurityHeaders)

	if rl := a.Config.Server.RateLimit; rl.Enabled {
		r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	// Prometheus scrapes outside the JSON content type
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	backend := string(a.Client.CacheBackend())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		transport.NewHealthHandler(backend, a.Client).Routes(r)

		gate := customMiddleware.NewLicenseGate(a.Client.Validator(), a.Logger)
		gate.SetTracer(a.OTelProviders.Tracer)
		if metrics, err := customMiddleware.NewGateMetrics(a.OTelProviders.Meter); err == nil {
			gate.SetMetrics(metrics)
		} else {
			a.Logger.Error("Failed to create license gate metrics", slog.String("error", err.Error()))
		}
		a.LicenseGate = gate

		r.Group(func(r chi.Router) {
			r.Use(gate.Handler)
			transport.NewLicenseHandler(a.Client.Validator(), backend, a.ErrorHandler, a.Logger).Routes(r)
		})
	})

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Addr returns the bound listen address once Start has succeeded
func (a *Application) Addr() string {
	if a.listener == nil {
		return a.Server.Addr
	}
	return a.listener.Addr().String()
}

// Start binds the listen address and serves in the background. A serve
// failure after startup cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("address", ln.Addr().String()),
		slog.String("cache_backend", string(a.Client.CacheBackend())),
		slog.String("software_id", a.Config.Client.SoftwareID))

	return nil
}

// Stop drains in-flight requests, background refreshes and analytics
// deliveries, then flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if err := a.Client.Close(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error draining license client", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run serves until ctx is cancelled or an interrupt arrives
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.WithoutCancel(ctx))
}
