package cryptoutils

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

// CertificateToPEM encodes raw DER certificate bytes as a PEM block with
// type CERTIFICATE.
func CertificateToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// SplitPKCS12 decomposes a base64-encoded unprotected PKCS12 bundle into a
// private key PEM and a certificate PEM. The first private key and the
// first certificate found in the container win; anything else in the bundle
// is ignored.
func SplitPKCS12(pkcs12Base64 string) (keyPEM, certPEM []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(normalizeBase64(pkcs12Base64))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid base64: %v", interfaces.ErrFormat, err)
	}

	// Empty password: the container must be unprotected.
	blocks, err := pkcs12.ToPEM(raw, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", interfaces.ErrFormat, err)
	}

	for _, block := range blocks {
		// Drop bag attribute headers: consumers expect bare PEM.
		bare := &pem.Block{Type: block.Type, Bytes: block.Bytes}
		switch {
		case keyPEM == nil && strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keyPEM = pem.EncodeToMemory(bare)
		case certPEM == nil && block.Type == "CERTIFICATE":
			certPEM = pem.EncodeToMemory(bare)
		}
	}

	if keyPEM == nil {
		return nil, nil, fmt.Errorf("%w: no private key in container", interfaces.ErrFormat)
	}
	if certPEM == nil {
		return nil, nil, fmt.Errorf("%w: no certificate in container", interfaces.ErrFormat)
	}

	return keyPEM, certPEM, nil
}

// normalizeBase64 strips whitespace so that line-wrapped vault payloads
// decode with the standard encoding.
func normalizeBase64(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, value)
}
