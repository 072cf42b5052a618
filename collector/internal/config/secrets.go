package config

import (
	"fmt"
	"os"
)

// Keystore resolves sensitive configuration values — the JWT signing
// secret and sink connection strings — that operators may prefer to keep
// out of collector.toml entirely.
//
// Backend selection mirrors the "auto" factory pattern: an environment
// variable backend is tried first, falling back to whatever was already
// loaded from the config file.
type Keystore struct {
	backend string
}

// NewKeystore constructs a Keystore. backend is "env" or "file"; "env" (the
// default) resolves values from the process environment, "file" is a no-op
// passthrough that trusts values already present in the loaded Config.
func NewKeystore(backend string) *Keystore {
	if backend == "" {
		backend = "env"
	}
	return &Keystore{backend: backend}
}

// ResolveTokenSecret returns the JWT signing secret, preferring the
// FLOWMESH_TOKEN_SECRET environment variable over the value already loaded
// from collector.toml.
func (k *Keystore) ResolveTokenSecret(configured string) (string, error) {
	return k.resolve("FLOWMESH_TOKEN_SECRET", configured, "auth.token_secret")
}

// ResolveEnrollmentSecret returns the bootstrap enrollment secret agents
// present on first contact, preferring the environment over the config
// file.
func (k *Keystore) ResolveEnrollmentSecret(configured string) (string, error) {
	return k.resolve("FLOWMESH_ENROLLMENT_SECRET", configured, "auth.enrollment_secret")
}

// ResolveSinkURL returns a sink connection string (Redis or Postgres),
// preferring the named environment variable over the config file.
func (k *Keystore) ResolveSinkURL(envVar, configured, field string) (string, error) {
	return k.resolve(envVar, configured, field)
}

func (k *Keystore) resolve(envVar, configured, field string) (string, error) {
	if k.backend == "env" {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}
	if configured == "" {
		return "", fmt.Errorf("%s is not configured and %s is not set", field, envVar)
	}
	return configured, nil
}
