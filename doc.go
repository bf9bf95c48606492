// Package fetcher coordinates asynchronous fetches: it wraps an operation,
// shares an in-flight invocation between callers, serves cached results,
// supports forced refreshes, and makes sure a slow, superseded invocation
// never overwrites the result of a newer one.
//
// A [Fetcher] holds one slot (value, error, loading flag). A [Keyed] fetcher
// holds one slot per request key, derived from each call's arguments:
//
//	users := fetcher.NewKeyed(loadUser, func(id int) int { return id })
//
//	// Starts loadUser(ctx, 42), or joins the call already running for 42.
//	u, ok := users.Fetch(ctx, fetcher.Params{}, 42)
//
//	// Always starts a new call; a call still running for 42 is superseded.
//	u, ok = users.Fetch(ctx, fetcher.DefaultParams(), 42)
//
// Every Fetch increments the slot's sequence number. An invocation applies
// its result only if its sequence number is still current when it settles,
// so results apply in settlement order but stale ones are dropped. The
// wrapped operation is never aborted; its effect is suppressed.
//
// Failures are absorbed into state: Fetch reports false and the mapped error
// is read back with Err, Errors or LastError. Use [Fetcher.Subscribe] or
// [Keyed.Subscribe] to be told when state changes.
package fetcher
