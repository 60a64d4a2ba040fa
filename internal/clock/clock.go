// Package clock provides a mockable wall clock used throughout the uploader
// so that tests can control the passage of time deterministically.
package clock

import "time"

// nowFunc is overridden in tests via SetNowFunc to make time deterministic.
var nowFunc = time.Now //nolint:gochecknoglobals

// Now returns the current time, as seen by the rest of the package.
func Now() time.Time {
	return nowFunc()
}

// SetNowFunc overrides the function used by Now, returning a restore function.
// Intended for tests:
//
//	defer clock.SetNowFunc(func() time.Time { return fixed })()
func SetNowFunc(f func() time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = f

	return func() { nowFunc = prev }
}
