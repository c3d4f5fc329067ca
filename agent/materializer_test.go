package agent

import (
	"context"
	"encoding/pem"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/keyvault-secrets-agent/config"
	"github.com/ruteri/keyvault-secrets-agent/cryptoutils"
	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

// fakeVault serves canned records keyed by name and remembers the versions
// requested for each.
type fakeVault struct {
	secrets map[string]interfaces.SecretRecord
	certs   map[string]interfaces.CertificateRecord

	requestedVersions map[string]string
}

func (f *fakeVault) GetSecret(ctx context.Context, name, version string) (interfaces.SecretRecord, error) {
	if f.requestedVersions != nil {
		f.requestedVersions["secret/"+name] = version
	}
	record, ok := f.secrets[name]
	if !ok {
		return interfaces.SecretRecord{}, fmt.Errorf("%w: secret %s", interfaces.ErrNotFound, name)
	}
	return record, nil
}

func (f *fakeVault) GetCertificate(ctx context.Context, name, version string) (interfaces.CertificateRecord, error) {
	if f.requestedVersions != nil {
		f.requestedVersions["certificate/"+name] = version
	}
	record, ok := f.certs[name]
	if !ok {
		return interfaces.CertificateRecord{}, fmt.Errorf("%w: certificate %s", interfaces.ErrNotFound, name)
	}
	return record, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, secretsKeys, certsKeys string) config.Config {
	t.Helper()
	cfg := config.Config{
		Layout: interfaces.NewOutputLayout(t.TempDir()),
	}
	if secretsKeys != "" {
		cfg.SecretRequests = interfaces.ParseRequestList(secretsKeys)
	}
	if certsKeys != "" {
		cfg.CertRequests = interfaces.ParseRequestList(certsKeys)
	}
	return cfg
}

func pfxFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/bundle.pfx.b64")
	require.NoError(t, err)
	return string(data)
}

func derFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/leaf.der")
	require.NoError(t, err)
	return data
}

func TestRunPlainSecret(t *testing.T) {
	cfg := testConfig(t, "mysecret", "")
	vault := &fakeVault{secrets: map[string]interfaces.SecretRecord{
		"mysecret": {Name: "mysecret", Value: "hello", Kind: interfaces.PlainSecret},
	}}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	require.NoError(t, m.Run(context.Background()))

	content, err := os.ReadFile(cfg.Layout.SecretPath("mysecret"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	// Only the raw value is produced for a plain secret.
	_, err = os.Stat(cfg.Layout.CertPath("mysecret"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = os.Stat(cfg.Layout.KeyPath("mysecret"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRunCertificateBackedSecret(t *testing.T) {
	bundle := pfxFixture(t)
	cfg := testConfig(t, "tls-identity", "")
	vault := &fakeVault{secrets: map[string]interfaces.SecretRecord{
		"tls-identity": {
			Name:  "tls-identity",
			Value: bundle,
			Kind:  interfaces.CertificateBackedSecret,
			Kid:   "https://example.vault.azure.net/keys/tls-identity/1",
		},
	}}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	require.NoError(t, m.Run(context.Background()))

	raw, err := os.ReadFile(cfg.Layout.SecretPath("tls-identity"))
	require.NoError(t, err)
	require.Equal(t, bundle, string(raw))

	keyPEM, err := os.ReadFile(cfg.Layout.KeyPath("tls-identity"))
	require.NoError(t, err)
	keyBlock, _ := pem.Decode(keyPEM)
	require.NotNil(t, keyBlock)

	certPEM, err := os.ReadFile(cfg.Layout.CertPath("tls-identity"))
	require.NoError(t, err)
	certBlock, _ := pem.Decode(certPEM)
	require.NotNil(t, certBlock)
	require.Equal(t, "CERTIFICATE", certBlock.Type)
}

func TestRunCertificate(t *testing.T) {
	der := derFixture(t)
	cfg := testConfig(t, "", "mycert:v1")
	vault := &fakeVault{
		certs: map[string]interfaces.CertificateRecord{
			"mycert": {Name: "mycert", Cer: der},
		},
		requestedVersions: make(map[string]string),
	}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	require.NoError(t, m.Run(context.Background()))

	require.Equal(t, "v1", vault.requestedVersions["certificate/mycert"])

	content, err := os.ReadFile(cfg.Layout.CertPath("mycert"))
	require.NoError(t, err)
	require.Equal(t, cryptoutils.CertificateToPEM(der), content)
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "tls-identity;plain", "mycert")
	vault := &fakeVault{
		secrets: map[string]interfaces.SecretRecord{
			"tls-identity": {
				Name:  "tls-identity",
				Value: pfxFixture(t),
				Kind:  interfaces.CertificateBackedSecret,
				Kid:   "kid",
			},
			"plain": {Name: "plain", Value: "value", Kind: interfaces.PlainSecret},
		},
		certs: map[string]interfaces.CertificateRecord{
			"mycert": {Name: "mycert", Cer: derFixture(t)},
		},
	}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	require.NoError(t, m.Run(context.Background()))
	first := snapshotTree(t, cfg.Layout)

	require.NoError(t, m.Run(context.Background()))
	require.Equal(t, first, snapshotTree(t, cfg.Layout))
}

func TestRunFetchErrorAborts(t *testing.T) {
	cfg := testConfig(t, "missing;after", "")
	vault := &fakeVault{secrets: map[string]interfaces.SecretRecord{
		"after": {Name: "after", Value: "never written", Kind: interfaces.PlainSecret},
	}}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	err := m.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	// Fail-fast: the identifier after the failing one is never written.
	_, err = os.Stat(cfg.Layout.SecretPath("after"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRunMalformedBundleAborts(t *testing.T) {
	cfg := testConfig(t, "broken", "")
	vault := &fakeVault{secrets: map[string]interfaces.SecretRecord{
		"broken": {
			Name:  "broken",
			Value: "bm90IGEgcGtjczEyIGNvbnRhaW5lcg==",
			Kind:  interfaces.CertificateBackedSecret,
			Kid:   "kid",
		},
	}}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	err := m.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, interfaces.ErrFormat)

	// The split runs before any write for the identifier, so none of the
	// three files exist.
	for _, path := range []string{
		cfg.Layout.SecretPath("broken"),
		cfg.Layout.CertPath("broken"),
		cfg.Layout.KeyPath("broken"),
	} {
		_, err := os.Stat(path)
		require.ErrorIs(t, err, fs.ErrNotExist)
	}
}

func TestRunCertificateOverwritesBundleCert(t *testing.T) {
	// Same name in both categories: the certificates pass runs second, so
	// its PEM is what remains on disk.
	der := derFixture(t)
	cfg := testConfig(t, "shared", "shared")
	vault := &fakeVault{
		secrets: map[string]interfaces.SecretRecord{
			"shared": {
				Name:  "shared",
				Value: pfxFixture(t),
				Kind:  interfaces.CertificateBackedSecret,
				Kid:   "kid",
			},
		},
		certs: map[string]interfaces.CertificateRecord{
			"shared": {Name: "shared", Cer: der},
		},
	}

	m := &Materializer{Config: cfg, Vault: vault, Log: testLogger()}
	require.NoError(t, m.Run(context.Background()))

	content, err := os.ReadFile(cfg.Layout.CertPath("shared"))
	require.NoError(t, err)
	require.Equal(t, cryptoutils.CertificateToPEM(der), content)
}

func snapshotTree(t *testing.T, layout interfaces.OutputLayout) map[string]string {
	t.Helper()
	snapshot := make(map[string]string)
	for _, dir := range []string{layout.SecretsDir, layout.CertsDir, layout.KeysDir} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, entry := range entries {
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			require.NoError(t, err)
			snapshot[filepath.Join(filepath.Base(dir), entry.Name())] = string(content)
		}
	}
	return snapshot
}
