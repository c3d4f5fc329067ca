// Package main (cmd/keyvault-agent) implements the one-shot secret
// materialization agent.
//
// On startup the agent authenticates to Azure Key Vault with a service
// principal credential loaded from a JSON descriptor file, retrieves the
// configured secrets and certificates, and writes each to a predictable
// path under the output folder so that a co-located process can consume
// them as files:
//
//	<output>/secrets/<name>  raw secret value
//	<output>/certs/<name>    certificate PEM
//	<output>/keys/<name>     private key PEM (certificate-backed secrets)
//
// Secrets whose vault record carries a key identifier back a certificate;
// their value is an unprotected base64 PKCS12 bundle, which is split into
// separate private key and certificate PEM files in addition to the raw
// value.
//
// Configuration is handled through command-line flags; every flag is also
// backed by an environment variable so the agent can be driven entirely
// from a pod spec:
//
//	keyvault-agent \
//	    --service-principle-file=/etc/kubernetes/azure.json \
//	    --vault-url=https://myvault.vault.azure.net \
//	    --output-folder=/secrets \
//	    --secrets-keys='db-password;tls-identity' \
//	    --certs-keys='ca-cert:v1'
//
// The agent performs exactly one fetch-and-write pass and exits: zero on
// success, non-zero on the first failure. Files written before a failure
// remain on disk.
package main
