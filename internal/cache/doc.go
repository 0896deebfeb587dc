// Package cache stores license validation records for the codecheckout client.
//
// # Backends
//
// Three interchangeable Storage implementations exist:
//
//	Memory      process lifetime, one map per instance
//	WebStorage  browser localStorage (js/wasm) or any injected WebStore
//	File        one JSON file per key under $HOME/.codecheckout/cache
//
// Open picks exactly one backend from a Capabilities value, preferring
// WebStorage, then File, then Memory. Detect builds Capabilities by probing
// the running environment once.
//
// # Failure Model
//
// Storage operations never return errors. Read failures, corrupted data and
// unusable backends read as absent; write failures are logged and skipped.
//
// # Last-Known Keys
//
// Each backend has a companion KeyStore remembering the last license key that
// validated successfully per software identifier. Record and key namespaces are
// disjoint, so clearing records never removes remembered keys.
package cache
