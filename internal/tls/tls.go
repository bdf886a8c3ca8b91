package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/botherd/botherd/internal/config"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

func parseTLSVersion(ver string) (uint16, bool) {
	switch ver {
	case "", "default":
		return tls.VersionTLS13, false
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

func resolveTLSVersions(api config.APIConfig) (minVer uint16, maxVer uint16) {
	minVer = tls.VersionTLS13
	maxVer = tls.VersionTLS13
	if v, ok := parseTLSVersion(api.TLSMinVersion); ok {
		minVer = v
	}
	if v, ok := parseTLSVersion(api.TLSMaxVersion); ok {
		maxVer = v
	}
	return
}

// safeReadFile reads file content only within baseDir.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// getCertificateFunc loads the key pair on each handshake so rotated files
// are picked up without a restart.
func getCertificateFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		readCert, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		readKey, err := safeReadFile(baseDir, keyFile)
		if err != nil {
			return nil, err
		}
		certificate, err := tls.X509KeyPair(readCert, readKey)
		return &certificate, err
	}
}

// Setup builds a *tls.Config for the operator API from its [api] section.
// It returns (nil, nil) when TLS is disabled.
func Setup(api config.APIConfig) (*tls.Config, error) {
	if api.TLS == nil || !api.TLS.Enabled {
		return nil, nil
	}

	minVer, maxVer := resolveTLSVersions(api)

	if api.TLS.CertFile != "" && api.TLS.KeyFile != "" {
		return newTLSConfig(api.TLS.CertFile, api.TLS.KeyFile, minVer, maxVer), nil
	}

	if api.TLS.Dir != "" {
		keyPath := filepath.Join(api.TLS.Dir, tlsKey)
		certPath := filepath.Join(api.TLS.Dir, tlsCrt)

		if api.TLS.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(api.TLS, api.TLS.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}

		return newTLSConfig(certPath, keyPath, minVer, maxVer), nil
	}

	return nil, errors.New("tls enabled but no certificate files or directory configured")
}

// CAPath returns the path of the generated CA certificate for a dir-based
// config, or "" when the config does not use a certificate directory.
func CAPath(c *config.TLSConfig) string {
	if c == nil || c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, tlsCaCrt)
}

func newTLSConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	// #nosec G402 min version is configurable down to 1.2
	return &tls.Config{
		GetCertificate: getCertificateFunc(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sliceOr(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func generateCertificate(tc *config.TLSConfig, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	autoGen := tc.AutoGen
	if autoGen == nil {
		autoGen = &config.AutoGenTLS{}
	}

	validDays := autoGen.ValidDays
	if validDays <= 0 {
		validDays = 365
	}

	return GenerateSelfSignedCert(CertConfig{
		CommonName:   valOr(autoGen.CommonName, "localhost"),
		Organization: valOr(autoGen.Organization, "botherd"),
		DNSNames:     sliceOr(autoGen.DNSNames, []string{"localhost"}),
		IPAddresses:  sliceOr(autoGen.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
		CACertPath:   filepath.Join(destDir, tlsCaCrt),
	})
}
