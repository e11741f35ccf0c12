// Package state holds the locally cached view of server-reported
// session state: the active environment files, the last confirmed
// variable count, the live connection identifier, enabled-source flags,
// and the interpolation toggle.
//
// The cache is deliberately conservative: counts and flags are written
// only on confirmed successful server responses, so a failed refresh
// never clobbers known-good state. All components share one *Session
// instance passed explicitly as a dependency.
package state
