// Package shared holds helpers used across the codecheckout packages.
//
// The testutil subpackage provides the buffered slog handler and log
// assertions used by package tests, plus license fixtures such as a
// manually advanced clock and pre-aged cache records:
//
//	logger, logs := testutil.NewTestLogger()
//	clock := testutil.NewClock(time.Now())
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Background refresh failed")
//
// Nothing here may import domain packages other than internal/cache.
package shared
