// Package tls builds the server TLS configuration of the status endpoint.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	tlsCrt = "tls.crt"
	tlsKey = "tls.key"
)

// Config selects the certificate. Explicit files win; otherwise a
// self-signed pair is generated in SelfSignedDir on first use.
type Config struct {
	CertFile      string `mapstructure:"cert_file"`
	KeyFile       string `mapstructure:"key_file"`
	SelfSignedDir string `mapstructure:"self_signed_dir"`
	MinVersion    string `mapstructure:"min_version"` // 1.2 or 1.3
}

// Enabled reports whether any certificate source is configured.
func (c Config) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.SelfSignedDir != ""
}

// Validate rejects half-configured certificate pairs and unknown versions.
func (c Config) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls cert_file and key_file must be set together")
	}
	if _, ok := parseTLSVersion(c.MinVersion); !ok {
		return fmt.Errorf("invalid tls min_version %q, must be 1.2 or 1.3", c.MinVersion)
	}
	return nil
}

func parseTLSVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "", "default", "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// Setup returns nil when TLS is not configured. Certificates are re-read on
// every handshake so a renewed pair is picked up without a restart.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" {
		certPath = filepath.Join(c.SelfSignedDir, tlsCrt)
		keyPath = filepath.Join(c.SelfSignedDir, tlsKey)
		if !certificatesExist(certPath, keyPath) {
			if err := GenerateSelfSigned(certPath, keyPath, "localhost"); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, err
	}
	minVer, _ := parseTLSVersion(c.MinVersion)
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := tls.LoadX509KeyPair(certPath, keyPath)
			return &cert, err
		},
		MinVersion: minVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
