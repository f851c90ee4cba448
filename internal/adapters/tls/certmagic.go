// Package tls obtains certificates for the tile server using CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool // Let's Encrypt staging CA
	DNS      DNSConfig
}

// DNSConfig selects the Azure DNS zone answering DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // user assigned managed identity, optional
}

// Validate checks that certificates can be requested.
func (c Config) Validate() error {
	if len(c.Domains) == 0 {
		return errors.New("tls: no domains")
	}
	if c.Email == "" {
		return errors.New("tls: no ACME account email")
	}
	return nil
}

// Manager holds the certificates of the configured domains in its own
// CertMagic configuration and cache.
type Manager struct {
	domains []string
	logger  *slog.Logger
	magic   *certmagic.Config
	cache   *certmagic.Cache
}

// NewManager prepares certificate management. Certificates are requested
// by ManageCertificates. Only the DNS-01 challenge is used so the tile
// server can sit behind a load balancer without port 80.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var magic *certmagic.Config
	cache := certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(certmagic.Certificate) (*certmagic.Config, error) {
			return magic, nil
		},
	})

	template := certmagic.Config{}
	if cfg.CacheDir != "" {
		template.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}
	magic = certmagic.New(cache, template)

	ca := certmagic.LetsEncryptProductionCA
	if cfg.Staging {
		ca = certmagic.LetsEncryptStagingCA
	}
	magic.Issuers = []certmagic.Issuer{
		certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
			CA:                      ca,
			Email:                   cfg.Email,
			Agreed:                  true,
			DisableHTTPChallenge:    true,
			DisableTLSALPNChallenge: true,
			DNS01Solver: &certmagic.DNS01Solver{
				DNSManager: certmagic.DNSManager{
					DNSProvider: &azure.Provider{
						SubscriptionId:    cfg.DNS.SubscriptionID,
						ResourceGroupName: cfg.DNS.ResourceGroupName,
						ClientId:          cfg.DNS.ClientID, // empty uses the system assigned identity
					},
				},
			},
		}),
	}

	return &Manager{domains: cfg.Domains, logger: logger, magic: magic, cache: cache}, nil
}

// TLSConfig returns a server configuration serving the managed
// certificates.
func (m *Manager) TLSConfig() *tls.Config {
	tlsConfig := m.magic.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	return tlsConfig
}

// ManageCertificates obtains or loads the certificates and keeps renewing
// them in the background. It returns once every domain has a certificate.
func (m *Manager) ManageCertificates(ctx context.Context) error {
	m.logger.Info("obtaining certificates", "domains", m.domains)

	if err := m.magic.ManageSync(ctx, m.domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}

	m.logger.Info("certificates ready", "domains", m.domains)
	return nil
}

// Close stops certificate maintenance.
func (m *Manager) Close() {
	m.cache.Stop()
}
