// Package keyvault adapts the Azure Key Vault SDK to the agent's vault
// reader interface. It authenticates with a service principal and maps SDK
// failures onto the agent's error taxonomy.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azcertificates"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"

	"github.com/ruteri/keyvault-secrets-agent/config"
	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

// Client reads secrets and certificates from a single vault. It implements
// interfaces.VaultReader.
type Client struct {
	secrets *azsecrets.Client
	certs   *azcertificates.Client
	log     *slog.Logger
}

// New authenticates the configured service principal and creates clients
// for the configured vault. Credential construction failures wrap
// interfaces.ErrAuth.
func New(cfg config.Config, log *slog.Logger) (*Client, error) {
	clientOpts := azcore.ClientOptions{
		Cloud: cloud.Configuration{
			ActiveDirectoryAuthorityHost: cfg.AuthorityServer,
		},
	}

	cred, err := azidentity.NewClientSecretCredential(
		cfg.ServicePrincipal.TenantID,
		cfg.ServicePrincipal.ClientID,
		cfg.ServicePrincipal.ClientSecret,
		&azidentity.ClientSecretCredentialOptions{ClientOptions: clientOpts},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuth, err)
	}

	// A non-default audience will not match the public vault domain in the
	// vault's authentication challenges.
	skipChallengeVerification := !cfg.DefaultAudience()

	secretsClient, err := azsecrets.NewClient(cfg.VaultURL, cred, &azsecrets.ClientOptions{
		ClientOptions:                        clientOpts,
		DisableChallengeResourceVerification: skipChallengeVerification,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets client: %w", err)
	}

	certsClient, err := azcertificates.NewClient(cfg.VaultURL, cred, &azcertificates.ClientOptions{
		ClientOptions:                        clientOpts,
		DisableChallengeResourceVerification: skipChallengeVerification,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create certificates client: %w", err)
	}

	return &Client{
		secrets: secretsClient,
		certs:   certsClient,
		log:     log,
	}, nil
}

// GetSecret fetches a secret by name and version. A record with a non-empty
// key identifier is tagged as certificate-backed.
func (c *Client) GetSecret(ctx context.Context, name, version string) (interfaces.SecretRecord, error) {
	resp, err := c.secrets.GetSecret(ctx, name, version, nil)
	if err != nil {
		return interfaces.SecretRecord{}, mapError("secret", name, err)
	}

	if resp.Value == nil {
		return interfaces.SecretRecord{}, fmt.Errorf("%w: secret %s has no value", interfaces.ErrNotFound, name)
	}

	record := interfaces.SecretRecord{
		Name:  name,
		Value: *resp.Value,
		Kind:  interfaces.PlainSecret,
	}
	if resp.Kid != nil && *resp.Kid != "" {
		record.Kind = interfaces.CertificateBackedSecret
		record.Kid = string(*resp.Kid)
	}

	c.log.Debug("Fetched secret from vault",
		slog.String("name", name),
		slog.String("version", version),
		slog.Bool("certificateBacked", record.Kind == interfaces.CertificateBackedSecret))

	return record, nil
}

// GetCertificate fetches a certificate by name and version. The returned
// record holds the raw DER bytes of the leaf certificate.
func (c *Client) GetCertificate(ctx context.Context, name, version string) (interfaces.CertificateRecord, error) {
	resp, err := c.certs.GetCertificate(ctx, name, version, nil)
	if err != nil {
		return interfaces.CertificateRecord{}, mapError("certificate", name, err)
	}

	if len(resp.CER) == 0 {
		return interfaces.CertificateRecord{}, fmt.Errorf("%w: certificate %s has no content", interfaces.ErrNotFound, name)
	}

	c.log.Debug("Fetched certificate from vault",
		slog.String("name", name),
		slog.String("version", version),
		slog.Int("derBytes", len(resp.CER)))

	return interfaces.CertificateRecord{Name: name, Cer: resp.CER}, nil
}

// mapError translates SDK failures onto the agent's error taxonomy, keeping
// the operation and identifier in the message.
func mapError(operation, name string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s %s: %v", interfaces.ErrNotFound, operation, name, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s %s: %v", interfaces.ErrAuth, operation, name, err)
		}
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %s %s: %v", interfaces.ErrAuth, operation, name, err)
	}

	return fmt.Errorf("failed to fetch %s %s: %w", operation, name, err)
}
