// Package interfaces defines the core types shared by the key vault agent
// components, along with the error taxonomy used across the fetch and
// materialization pipeline.
package interfaces

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ServicePrincipal is the non-interactive identity used to authenticate to
// the vault. It is loaded once at startup from a JSON descriptor file and
// never mutated afterwards.
type ServicePrincipal struct {
	TenantID     string `json:"tenantId"`
	ClientID     string `json:"aadClientId"`
	ClientSecret string `json:"aadClientSecret"`
}

// Validate checks that all required credential fields are present.
func (sp ServicePrincipal) Validate() error {
	if sp.TenantID == "" {
		return fmt.Errorf("%w: service principal is missing tenantId", ErrConfig)
	}
	if sp.ClientID == "" {
		return fmt.Errorf("%w: service principal is missing aadClientId", ErrConfig)
	}
	if sp.ClientSecret == "" {
		return fmt.Errorf("%w: service principal is missing aadClientSecret", ErrConfig)
	}
	return nil
}

// SecretRequest identifies a single secret or certificate to retrieve.
// An empty Version requests the latest version.
type SecretRequest struct {
	Name    string
	Version string
}

// ParseRequestList parses a semicolon-delimited list of name[:version]
// tokens into an ordered sequence of requests. Tokens are trimmed of
// surrounding whitespace, and empty tokens (consecutive delimiters, leading
// or trailing delimiters) are skipped silently.
func ParseRequestList(list string) []SecretRequest {
	var requests []SecretRequest
	for _, token := range strings.Split(list, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		name, version, _ := strings.Cut(token, ":")
		requests = append(requests, SecretRequest{Name: name, Version: version})
	}
	return requests
}

// SecretKind distinguishes plain secrets from secrets that back a vault
// certificate, whose value is a base64 PKCS12 bundle.
type SecretKind int

const (
	// PlainSecret is a secret whose value is written out as-is.
	PlainSecret SecretKind = iota

	// CertificateBackedSecret is a secret backing a vault certificate. Its
	// value is a base64 PKCS12 bundle holding a private key and certificate.
	CertificateBackedSecret
)

// SecretRecord is the result of a secret lookup.
type SecretRecord struct {
	Name  string
	Value string
	Kind  SecretKind

	// Kid is the identifier of the key backing the secret's certificate.
	// It is empty for plain secrets and is never resolved, only used as the
	// signal that selects the certificate-backed path.
	Kid string
}

// CertificateRecord is the result of a certificate lookup. Cer holds the
// raw DER bytes of the leaf certificate.
type CertificateRecord struct {
	Name string
	Cer  []byte
}

// SecretReader retrieves secrets from the vault.
type SecretReader interface {
	// GetSecret fetches a secret by name and version. An empty version
	// requests the latest.
	GetSecret(ctx context.Context, name, version string) (SecretRecord, error)
}

// CertificateReader retrieves certificates from the vault.
type CertificateReader interface {
	// GetCertificate fetches a certificate by name and version. An empty
	// version requests the latest.
	GetCertificate(ctx context.Context, name, version string) (CertificateRecord, error)
}

// VaultReader combines the two vault read operations the agent performs.
type VaultReader interface {
	SecretReader
	CertificateReader
}

// OutputLayout holds the three output directories derived from the base
// output folder. All three must exist before any write is attempted.
type OutputLayout struct {
	SecretsDir string
	CertsDir   string
	KeysDir    string
}

// NewOutputLayout derives the output directories from the base folder.
func NewOutputLayout(baseDir string) OutputLayout {
	return OutputLayout{
		SecretsDir: filepath.Join(baseDir, "secrets"),
		CertsDir:   filepath.Join(baseDir, "certs"),
		KeysDir:    filepath.Join(baseDir, "keys"),
	}
}

// Ensure creates the output directories if they are absent. It is
// idempotent and must succeed before any file is written.
func (l OutputLayout) Ensure() error {
	for _, dir := range []string{l.SecretsDir, l.CertsDir, l.KeysDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create output directory %s: %v", ErrIO, dir, err)
		}
	}
	return nil
}

// SecretPath returns the output path for a secret's raw value.
func (l OutputLayout) SecretPath(name string) string {
	return filepath.Join(l.SecretsDir, name)
}

// CertPath returns the output path for a certificate PEM.
func (l OutputLayout) CertPath(name string) string {
	return filepath.Join(l.CertsDir, name)
}

// KeyPath returns the output path for a private key PEM.
func (l OutputLayout) KeyPath(name string) string {
	return filepath.Join(l.KeysDir, name)
}
