// Package http implements the HTTP handlers of the local license server.
// Handlers are thin: they decode and validate the request, delegate to the
// license validator and render JSON or RFC 7807 problem responses.
//
// # Routes
//
//	POST   /license/validate  validate a license key
//	DELETE /license/cache     clear cached validation decisions
//	GET    /health            report version, cache backend and breaker state
//
// # Errors
//
// Every failure is rendered through errors.ErrorHandler so clients receive
// application/json problem details carrying the request's trace_id.
package http
