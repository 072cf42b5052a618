package config

import "testing"

func TestFlushDefaultsPositive(t *testing.T) {
	if DefaultFlushBatchSize <= 0 {
		t.Error("DefaultFlushBatchSize should be positive")
	}
	if DefaultFlushInterval <= 0 {
		t.Error("DefaultFlushInterval should be positive")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate with auth.mode=none or token_secret set: %v", err)
	}
}

func TestExpandEnvResolvesTokenSecret(t *testing.T) {
	t.Setenv("FLOWMESH_TEST_SECRET", "shh")
	cfg := DefaultConfig()
	cfg.Auth.TokenSecret = expandEnv("${FLOWMESH_TEST_SECRET}")
	if cfg.Auth.TokenSecret != "shh" {
		t.Errorf("expandEnv: got %q, want %q", cfg.Auth.TokenSecret, "shh")
	}
}

func TestValidateAcceptsUnknownSinkBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Mode = "none"
	cfg.Sink.Backend = "not-a-backend"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for an unrecognized sink backend (console fallback)", err)
	}
}

func TestValidateRejectsTokenModeWithoutSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.TokenSecret = ""
	cfg.Sink.Backend = "console"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for token mode without a configured secret")
	}
}
