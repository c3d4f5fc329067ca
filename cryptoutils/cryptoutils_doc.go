// Package cryptoutils provides the byte-format conversions the key vault
// agent performs on retrieved material.
//
// Vault certificates arrive as raw DER bytes and are re-framed as PEM before
// being written to disk. Certificate-backed secrets arrive as base64 PKCS12
// bundles; SplitPKCS12 decomposes such a bundle into its private key and
// leaf certificate, each independently PEM-encoded.
//
// # PEM Framing
//
// CertificateToPEM wraps raw certificate bytes with the literal
// -----BEGIN CERTIFICATE----- / -----END CERTIFICATE----- delimiters and a
// base64 body wrapped at the standard 64 columns, as produced by
// encoding/pem. The framing round-trips: stripping the delimiters and
// decoding the body yields the original bytes.
//
// # PKCS12 Constraints
//
// Bundles must be unprotected; no passphrase is ever supplied. Only the
// first private key and the first certificate found in the container are
// extracted. Certificate chains and encrypted containers are not supported.
package cryptoutils
