package tls

import (
	cryptotls "crypto/tls"
	"io"
	"log/slog"
	"testing"

	"github.com/caddyserver/certmagic"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", Config{Domains: []string{"charts.example.com"}, Email: "ops@example.com"}, false},
		{"no domains", Config{Email: "ops@example.com"}, true},
		{"no email", Config{Domains: []string{"charts.example.com"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewManagerRejectsIncompleteConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewManager(Config{}, logger); err == nil {
		t.Error("NewManager() accepted a config without domains")
	}
}

func TestNewManagerUsesOwnConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewManager(Config{
		Domains:  []string{"charts.example.com"},
		Email:    "ops@example.com",
		CacheDir: t.TempDir(),
		Staging:  true,
	}, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if len(m.magic.Issuers) != 1 {
		t.Fatalf("issuers = %d, want 1", len(m.magic.Issuers))
	}
	issuer, ok := m.magic.Issuers[0].(*certmagic.ACMEIssuer)
	if !ok {
		t.Fatalf("issuer type %T", m.magic.Issuers[0])
	}
	if issuer.CA != certmagic.LetsEncryptStagingCA || !issuer.DisableHTTPChallenge {
		t.Errorf("issuer CA = %q, http challenge disabled = %v", issuer.CA, issuer.DisableHTTPChallenge)
	}
	if certmagic.DefaultACME.Email == "ops@example.com" {
		t.Error("NewManager changed the package level ACME defaults")
	}

	cfg := m.TLSConfig()
	if cfg.MinVersion != cryptotls.VersionTLS12 || cfg.NextProtos[0] != "h2" {
		t.Errorf("TLS config MinVersion = %x, NextProtos = %v", cfg.MinVersion, cfg.NextProtos)
	}
}
