// Package component defines the lifecycle contract shared by the Message
// Director's subsystems and a small Manager that starts them in order and
// stops them in reverse.
//
// The Message Director has a fixed set of subsystems — the network
// endpoint, the routing engine, the upstream link, the event sender, and
// the admin HTTP server — wired directly in cmd/messaged. Unlike the
// dynamic, config-driven component registry this package is adapted from,
// there is no factory lookup by name: each subsystem is constructed with
// its own concrete dependencies and handed to Manager.Start.
package component
