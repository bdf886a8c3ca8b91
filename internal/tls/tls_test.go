package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botherd/botherd/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	c, err := Setup(config.APIConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil tls config when disabled")
	}
}

func TestSetupNoCertSource(t *testing.T) {
	_, err := Setup(config.APIConfig{TLS: &config.TLSConfig{Enabled: true}})
	if err == nil {
		t.Fatalf("expected error for enabled TLS without cert source")
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := t.TempDir()
	api := config.APIConfig{TLS: &config.TLSConfig{
		Enabled:      true,
		Dir:          dir,
		AutoGenerate: true,
		AutoGen: &config.AutoGenTLS{
			CommonName: "manager.local",
			DNSNames:   []string{"manager.local"},
			ValidDays:  2,
		},
	}}
	c, err := Setup(api)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if c == nil || c.GetCertificate == nil {
		t.Fatalf("expected GetCertificate to be set")
	}
	cert, err := c.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("load cert: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	if leaf.Subject.CommonName != "manager.local" {
		t.Fatalf("common name = %q", leaf.Subject.CommonName)
	}
	if !leaf.NotAfter.After(time.Now()) {
		t.Fatalf("certificate already expired: %v", leaf.NotAfter)
	}

	caPath := CAPath(api.TLS)
	raw, err := os.ReadFile(caPath)
	if err != nil {
		t.Fatalf("read CA: %v", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("CA file is not a PEM certificate")
	}

	// Existing files must be reused, not regenerated.
	before, err := os.ReadFile(filepath.Join(dir, "tls.crt"))
	if err != nil {
		t.Fatalf("read cert file: %v", err)
	}
	if _, err := Setup(api); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	after, err := os.ReadFile(filepath.Join(dir, "tls.crt"))
	if err != nil {
		t.Fatalf("re-read cert file: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("certificate was regenerated on second setup")
	}
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	err := GenerateSelfSignedCert(CertConfig{
		CommonName:   "localhost",
		Organization: "botherd",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1"},
		NotAfter:     time.Now().AddDate(0, 0, 1),
		CertPath:     certPath,
		KeyPath:      keyPath,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c, err := Setup(config.APIConfig{TLS: &config.TLSConfig{
		Enabled:  true,
		CertFile: certPath,
		KeyFile:  keyPath,
	}})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := c.GetCertificate(&tls.ClientHelloInfo{}); err != nil {
		t.Fatalf("load cert: %v", err)
	}
}

func TestResolveTLSVersions(t *testing.T) {
	minVer, maxVer := resolveTLSVersions(config.APIConfig{TLSMinVersion: "1.2"})
	if minVer != tls.VersionTLS12 || maxVer != tls.VersionTLS13 {
		t.Fatalf("unexpected versions: min=%x max=%x", minVer, maxVer)
	}
	minVer, maxVer = resolveTLSVersions(config.APIConfig{})
	if minVer != tls.VersionTLS13 || maxVer != tls.VersionTLS13 {
		t.Fatalf("default versions: min=%x max=%x", minVer, maxVer)
	}
}

func TestSafeReadFileOutsideBase(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := safeReadFile(dir, other); err == nil {
		t.Fatalf("expected error reading outside base dir")
	}
}
