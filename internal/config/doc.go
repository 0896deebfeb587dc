// Package config provides configuration loading for the codecheckout client.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern CODECHECKOUT_<SECTION>_<FIELD>:
//
//	CODECHECKOUT_CLIENT_SOFTWARE_ID=sw_123
//	CODECHECKOUT_CLIENT_BASE_URL=https://api.riff-tech.com/v1
//	CODECHECKOUT_CLIENT_CACHE_DURATION_HOURS=24
//	CODECHECKOUT_CACHE_BACKEND=file
//	CODECHECKOUT_LOGGING_LEVEL=debug
//
// # Validation
//
// Loaded configuration is validated with go-playground/validator struct tags.
// Load returns an error instead of a partially valid Config.
package config
