// Package command implements the library of higher-level operations
// over the command gateway: variable and file listings, active-file
// activation, source precedence, interpolation, example generation,
// workspace roots, aggregate refresh, and the remote-provider
// authentication flow.
//
// Every operation shares one shape: build arguments, call the
// gateway, interpret the (result, error) outcome, update session
// state only on confirmed success, run registered hooks over the
// payload, then invoke the caller's callback with the hook-transformed
// result. Transport failures degrade to benign empty results while
// preserving previously known good state; server-reported errors
// propagate upward verbatim. Nothing here retries: retry policy
// belongs to the caller.
package command
