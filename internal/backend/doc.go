// Package backend selects and runs one of three interchangeable
// startup strategies for the envlens-ls server: the host's native
// client API, the external registration library, or an externally
// managed client some other plugin owns.
//
// The strategies differ only in how a connection comes to exist. The
// lifecycle behavior around that connection (the one-shot init
// priming, the per-buffer attach sequence, the attach predicate) is
// factored into a single Lifecycle shared by every driver, so the
// once-per-connection guards live in explicit fields instead of
// per-driver closures.
package backend
