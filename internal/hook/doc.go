// Package hook is the extension point between the session core and
// user plugins. Components fire named events; handlers observe them or
// filter their payloads. Handler faults are isolated: a panic inside a
// handler never reaches the component that fired the event.
package hook
