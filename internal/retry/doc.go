// Package retry provides the bounded exponential-backoff executor shared
// by the readings store and the device registry.
//
// Transient contention (SQLITE_BUSY from a concurrent writer, a held
// registry lock file) is retried with doubling delays; permanent failures
// (constraint violations, malformed input) propagate immediately. The
// policy is a standalone injectable value so every component shares one
// tested backoff implementation instead of duplicating sleep loops.
//
// Usage:
//
//	policy := retry.New(3, time.Second)
//	policy.SetLogger(logger)
//
//	err := policy.Do(ctx, func(ctx context.Context) error {
//	    return store.insertRow(ctx, r)
//	}, func(err error) retry.Classification {
//	    if database.IsBusyError(err) {
//	        return retry.Transient
//	    }
//	    return retry.Permanent
//	})
package retry
