// Package license decides whether a license key is currently valid for a
// software identifier. It prefers cached answers, refreshes them in the
// background, and falls back to the last known answer when the license
// authority cannot be reached.
//
// # Validation Flow
//
// Validate runs a single decision path:
//
//	1. Resolve the license key (request, then last-known key store)
//	2. Build the cache key from software id and license key
//	3. Serve a fresh cached record and refresh it in the background
//	4. Otherwise ask the authority and cache its answer
//	5. On any failure serve the cached record regardless of age,
//	   or {false, "Error validating license"} when there is none
//
// Validate never returns an error. Failures are visible only in logs,
// span status and metrics.
//
// # Concurrency
//
// Authority calls for the same cache key share one in-flight request.
// Background refreshes run detached from the caller's context, are rate
// limited, and are tracked so Close can drain them. A failed refresh leaves
// the cached record untouched until it expires naturally and is reported
// to the configured RefreshReporter.
//
// # Usage
//
//	v := license.NewValidator(cfg.Client, backend, apiClient,
//	    license.WithIdentity(identity.NewProvider(logger)),
//	    license.WithLogger(logger),
//	)
//	defer v.Close(ctx)
//
//	res := v.Validate(ctx, license.Request{LicenseKey: key})
//	if !res.IsValid {
//	    fmt.Println(res.Reason)
//	}
package license
