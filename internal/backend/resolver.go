package backend

import (
	"errors"
	"fmt"
)

// Preference is the host-configured backend startup preference.
type Preference int

const (
	// PreferAuto picks the most capable available strategy.
	PreferAuto Preference = iota

	// PreferNative forces the host's built-in client.
	PreferNative

	// PreferRegistry forces the external registration library.
	PreferRegistry

	// PreferExternal declares the server externally managed; no
	// capability is required.
	PreferExternal
)

// String returns the configuration name of the preference.
func (p Preference) String() string {
	switch p {
	case PreferAuto:
		return "auto"
	case PreferNative:
		return "native"
	case PreferRegistry:
		return "registry"
	case PreferExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ParsePreference maps a configuration string to a preference.
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "", "auto":
		return PreferAuto, nil
	case "native":
		return PreferNative, nil
	case "registry":
		return PreferRegistry, nil
	case "external":
		return PreferExternal, nil
	default:
		return PreferAuto, fmt.Errorf("unknown backend preference %q", s)
	}
}

// Strategy is a concrete startup strategy.
type Strategy int

const (
	StrategyNative Strategy = iota
	StrategyRegistry
	StrategyExternal
)

// String returns a human-readable strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyRegistry:
		return "registry"
	case StrategyExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Capabilities are the host capability flags the resolver decides on.
// They are plain data so tests can fabricate any combination.
type Capabilities struct {
	// NativeClient reports whether the host exposes a built-in LSP
	// client API new enough to start servers directly.
	NativeClient bool

	// RegistryLib reports whether the external registration library is
	// installed.
	RegistryLib bool
}

// ErrMissingCapability indicates a forced strategy's prerequisite is
// absent. The wrapped message names the missing capability and the
// viable alternative; the caller is responsible for aborting setup.
var ErrMissingCapability = errors.New("missing host capability")

// Resolution is the resolver outcome: a chosen strategy plus an
// optional non-fatal advisory.
type Resolution struct {
	Strategy Strategy

	// Warning is set when the resolution succeeded but the host should
	// tell the user something, e.g. no managed startup is possible.
	Warning string
}

// Resolve decides which startup strategy to use. It is a pure
// function of the preference and the capability flags.
//
// Forced strategies fail with ErrMissingCapability when their
// prerequisite is absent; the returned resolution still names the
// forced strategy so error messages can reference it. Auto prefers
// the native client, falls back to the registration library, and
// otherwise resolves to externally-managed with a warning.
func Resolve(pref Preference, caps Capabilities) (Resolution, error) {
	switch pref {
	case PreferExternal:
		return Resolution{Strategy: StrategyExternal}, nil

	case PreferNative:
		if !caps.NativeClient {
			return Resolution{Strategy: StrategyNative}, fmt.Errorf(
				"%w: native client API unavailable; use the registry backend or set backend to external",
				ErrMissingCapability)
		}
		return Resolution{Strategy: StrategyNative}, nil

	case PreferRegistry:
		if !caps.RegistryLib {
			return Resolution{Strategy: StrategyRegistry}, fmt.Errorf(
				"%w: registration library not installed; use the native backend or set backend to external",
				ErrMissingCapability)
		}
		return Resolution{Strategy: StrategyRegistry}, nil

	default: // PreferAuto
		if caps.NativeClient {
			return Resolution{Strategy: StrategyNative}, nil
		}
		if caps.RegistryLib {
			return Resolution{Strategy: StrategyRegistry}, nil
		}
		return Resolution{
			Strategy: StrategyExternal,
			Warning:  "no managed startup available: neither the native client API nor the registration library is present; expecting an externally managed server",
		}, nil
	}
}
