// Package app wires the local license server: configuration, logging,
// telemetry, the license client and the HTTP router.
//
// # Routes
//
//	GET    /health             liveness plus cache backend and breaker state
//	GET    /metrics            Prometheus scrape endpoint, when enabled
//	POST   /license/validate   validate a license key
//	GET    /license/current    the decision admitted for X-License-Key
//	DELETE /license/cache      drop every cached decision
//
// Everything except /health, /metrics and /license/validate sits behind the
// license gate and requires a valid X-License-Key header.
//
// # Usage
//
//	app, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM. Stop finishes in-flight requests, drains
// background refreshes and analytics deliveries, and flushes telemetry
// within Server.ShutdownTimeout. The package never calls os.Exit.
package app
