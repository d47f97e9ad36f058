// Package certs supplies the TLS server options for the test server.
//
// Certificates come either from an existing PEM pair on disk (by default the
// location used by the Office add-in dev-certs tooling) or from an ephemeral
// self-signed certificate generated in memory.
package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"

	"addintestserver/internal/config"
)

// ErrCertificateUnavailable is wrapped by every provider failure.
var ErrCertificateUnavailable = errors.New("certs: certificate unavailable")

// Provider returns TLS options for an HTTPS listener.
type Provider interface {
	HTTPSServerOptions(ctx context.Context) (*tls.Config, error)
}

// FileProvider loads a PEM certificate/key pair.
type FileProvider struct {
	CertPath string
	KeyPath  string
}

// DefaultDevCertPaths returns the localhost pair installed by the Office
// add-in dev-certs tooling under the user's home directory.
func DefaultDevCertPaths() (certPath, keyPath string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, ".office-addin-dev-certs")
	return filepath.Join(dir, "localhost.crt"), filepath.Join(dir, "localhost.key"), nil
}

func (p *FileProvider) HTTPSServerOptions(ctx context.Context) (*tls.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	certPath, keyPath := p.CertPath, p.KeyPath
	if certPath == "" || keyPath == "" {
		var err error
		certPath, keyPath, err = DefaultDevCertPaths()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCertificateUnavailable, err)
		}
	}

	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load TLS certificate/key pair: %v", ErrCertificateUnavailable, err)
	}
	return serverConfig(pair), nil
}

var defaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// SelfSignedProvider generates a fresh ECDSA certificate on every call.
type SelfSignedProvider struct {
	// Hosts are DNS names or IP literals; empty means localhost and loopback.
	Hosts    []string
	ValidFor time.Duration
}

func (p *SelfSignedProvider) HTTPSServerOptions(ctx context.Context) (*tls.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pair, err := p.generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateUnavailable, err)
	}
	return serverConfig(pair), nil
}

func (p *SelfSignedProvider) generate() (tls.Certificate, error) {
	hosts := p.Hosts
	if len(hosts) == 0 {
		hosts = defaultHosts
	}
	validFor := p.ValidFor
	if validFor <= 0 {
		validFor = 24 * time.Hour
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hosts[0],
			Organization: []string{"Office Add-in Test Server"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// NewProvider picks the file provider when paths are configured and the
// self-signed provider otherwise. A self-signed certificate also names
// serverHost unless it is empty or an unspecified address, so clients can
// verify the URL the server reports.
func NewProvider(cfg config.TLSConfig, serverHost string) Provider {
	if cfg.CertPath != "" && cfg.KeyPath != "" {
		return &FileProvider{CertPath: cfg.CertPath, KeyPath: cfg.KeyPath}
	}
	return &SelfSignedProvider{Hosts: selfSignedHosts(serverHost), ValidFor: cfg.ValidFor}
}

func selfSignedHosts(serverHost string) []string {
	hosts := append([]string(nil), defaultHosts...)
	if serverHost == "" {
		return hosts
	}
	if ip := net.ParseIP(serverHost); ip != nil && ip.IsUnspecified() {
		return hosts
	}
	if slices.Contains(hosts, serverHost) {
		return hosts
	}
	return append(hosts, serverHost)
}

// CertPool returns a pool holding the leaf certificates served by cfg, so a
// client can verify this server without disabling verification.
func CertPool(cfg *tls.Config) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if cfg == nil {
		return pool, nil
	}
	for _, c := range cfg.Certificates {
		leaf := c.Leaf
		if leaf == nil {
			if len(c.Certificate) == 0 {
				continue
			}
			var err error
			leaf, err = x509.ParseCertificate(c.Certificate[0])
			if err != nil {
				return nil, fmt.Errorf("parse served certificate: %w", err)
			}
		}
		pool.AddCert(leaf)
	}
	return pool, nil
}

func serverConfig(pair tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
}
