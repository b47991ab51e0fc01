// Package config loads and validates the Message Director's configuration.
//
// Unlike the teacher's NATS-KV-backed dynamic configuration, the daemon's
// configuration surface is small and static: a handful of bind/connect
// addresses, queue sizing, and optional TLS/eventlog/admin settings loaded
// once from a YAML file (or defaults) at startup. The one piece of runtime
// mutability the daemon needs — the log level — is exposed through
// SafeConfig, adapted from the teacher's thread-safe config wrapper.
package config
