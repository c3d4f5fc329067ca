// Package agent implements the fetch-and-write pass over the configured
// secret and certificate identifiers.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ruteri/keyvault-secrets-agent/config"
	"github.com/ruteri/keyvault-secrets-agent/cryptoutils"
	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

// Materializer performs a single fetch-and-write pass: every configured
// secret and certificate is retrieved from the vault and written under the
// output layout. The first error anywhere aborts the run; files already
// written remain on disk.
type Materializer struct {
	Config config.Config
	Vault  interfaces.VaultReader
	Log    *slog.Logger
}

// Run executes the pass: output directories first, then the secrets
// category, then the certificates category, strictly in order.
func (m *Materializer) Run(ctx context.Context) error {
	if err := m.Config.Layout.Ensure(); err != nil {
		m.Log.Error("Failed to prepare output directories", "err", err)
		return err
	}

	// Tracks certs/<name> writes so same-name collisions within the run are
	// visible. The overwrite itself is preserved: last write wins.
	writtenCerts := make(map[string]bool)

	for _, req := range m.Config.SecretRequests {
		if err := m.materializeSecret(ctx, req, writtenCerts); err != nil {
			return err
		}
	}

	for _, req := range m.Config.CertRequests {
		if err := m.materializeCertificate(ctx, req, writtenCerts); err != nil {
			return err
		}
	}

	return nil
}

func (m *Materializer) materializeSecret(ctx context.Context, req interfaces.SecretRequest, writtenCerts map[string]bool) error {
	m.Log.Info("Retrieving secret", slog.String("name", req.Name), slog.String("version", req.Version))

	record, err := m.Vault.GetSecret(ctx, req.Name, req.Version)
	if err != nil {
		m.Log.Error("Failed to retrieve secret", slog.String("name", req.Name), "err", err)
		return err
	}

	switch record.Kind {
	case interfaces.CertificateBackedSecret:
		m.Log.Info("Secret is backing a certificate, dumping private key and certificate",
			slog.String("name", req.Name))
		if err := m.dumpCertificateBundle(record, writtenCerts); err != nil {
			return err
		}
	case interfaces.PlainSecret:
		// Raw value write below is all there is.
	default:
		return fmt.Errorf("unhandled secret kind %d for %s", record.Kind, req.Name)
	}

	path := m.Config.Layout.SecretPath(req.Name)
	m.Log.Info("Dumping secret value", slog.String("path", path))
	return m.writeFile(path, []byte(record.Value), 0600)
}

// dumpCertificateBundle splits the PKCS12 bundle carried by a
// certificate-backed secret and writes its private key and certificate
// before the raw secret value is written.
func (m *Materializer) dumpCertificateBundle(record interfaces.SecretRecord, writtenCerts map[string]bool) error {
	keyPEM, certPEM, err := cryptoutils.SplitPKCS12(record.Value)
	if err != nil {
		m.Log.Error("Failed to split PKCS12 bundle", slog.String("name", record.Name), "err", err)
		return err
	}

	keyPath := m.Config.Layout.KeyPath(record.Name)
	m.Log.Info("Dumping private key", slog.String("path", keyPath))
	if err := m.writeFile(keyPath, keyPEM, 0600); err != nil {
		return err
	}

	certPath := m.Config.Layout.CertPath(record.Name)
	m.noteCertWrite(record.Name, writtenCerts)
	m.Log.Info("Dumping certificate", slog.String("path", certPath))
	return m.writeFile(certPath, certPEM, 0644)
}

func (m *Materializer) materializeCertificate(ctx context.Context, req interfaces.SecretRequest, writtenCerts map[string]bool) error {
	m.Log.Info("Retrieving certificate", slog.String("name", req.Name), slog.String("version", req.Version))

	record, err := m.Vault.GetCertificate(ctx, req.Name, req.Version)
	if err != nil {
		m.Log.Error("Failed to retrieve certificate", slog.String("name", req.Name), "err", err)
		return err
	}

	path := m.Config.Layout.CertPath(req.Name)
	m.noteCertWrite(req.Name, writtenCerts)
	m.Log.Info("Dumping certificate", slog.String("path", path))
	return m.writeFile(path, cryptoutils.CertificateToPEM(record.Cer), 0644)
}

func (m *Materializer) noteCertWrite(name string, writtenCerts map[string]bool) {
	if writtenCerts[name] {
		m.Log.Warn("Overwriting certificate written earlier in this run",
			slog.String("name", name))
	}
	writtenCerts[name] = true
}

func (m *Materializer) writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		err = fmt.Errorf("%w: %s: %v", interfaces.ErrIO, path, err)
		m.Log.Error("Failed to write output file", slog.String("path", path), "err", err)
		return err
	}
	return nil
}
