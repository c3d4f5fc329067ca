package cryptoutils

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

func TestCertificateToPEMRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		size int
	}{
		{name: "short", size: 16},
		{name: "one pem line", size: 48},
		{name: "certificate sized", size: 1200},
		{name: "large", size: 8192},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, tc.size)
			_, err := rand.Read(data)
			require.NoError(t, err)

			pemBytes := CertificateToPEM(data)
			lines := strings.Split(strings.TrimRight(string(pemBytes), "\n"), "\n")
			require.Equal(t, "-----BEGIN CERTIFICATE-----", lines[0])
			require.Equal(t, "-----END CERTIFICATE-----", lines[len(lines)-1])

			// Body lines wrap at the standard 64 columns.
			body := lines[1 : len(lines)-1]
			for _, line := range body[:len(body)-1] {
				require.Len(t, line, 64)
			}

			decoded, err := base64.StdEncoding.DecodeString(strings.Join(body, ""))
			require.NoError(t, err)
			require.Equal(t, data, decoded)
		})
	}
}

func TestSplitPKCS12(t *testing.T) {
	bundle, err := os.ReadFile("testdata/bundle.pfx.b64")
	require.NoError(t, err)

	keyPEM, certPEM, err := SplitPKCS12(string(bundle))
	require.NoError(t, err)

	keyBlock, rest := pem.Decode(keyPEM)
	require.NotNil(t, keyBlock)
	require.Empty(t, rest)
	require.True(t, strings.HasSuffix(keyBlock.Type, "PRIVATE KEY"))

	certBlock, rest := pem.Decode(certPEM)
	require.NotNil(t, certBlock)
	require.Empty(t, rest)
	require.Equal(t, "CERTIFICATE", certBlock.Type)

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	require.NoError(t, err)
	require.Equal(t, "agent-test", cert.Subject.CommonName)
}

func TestSplitPKCS12MalformedInput(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!! definitely not base64 !!!"},
		{name: "base64 of garbage", input: base64.StdEncoding.EncodeToString([]byte("random bytes, not a container"))},
		{name: "empty", input: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := SplitPKCS12(tc.input)
			require.Error(t, err)
			require.ErrorIs(t, err, interfaces.ErrFormat)
		})
	}
}
