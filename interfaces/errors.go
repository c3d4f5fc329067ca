package interfaces

import "errors"

var (
	// ErrConfig is returned when configuration or the service principal
	// descriptor file is missing or malformed.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuth is returned when token acquisition fails or the vault rejects
	// the credential.
	ErrAuth = errors.New("vault authentication failed")

	// ErrNotFound is returned when a requested secret or certificate is
	// absent from the vault.
	ErrNotFound = errors.New("not found in vault")

	// ErrFormat is returned when a certificate-backed secret does not hold a
	// well-formed unprotected PKCS12 bundle.
	ErrFormat = errors.New("malformed PKCS12 bundle")

	// ErrIO is returned when an output file or directory cannot be written.
	ErrIO = errors.New("output write failed")
)
