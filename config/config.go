// Package config loads the agent's immutable configuration from the service
// principal descriptor file and the process environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ruteri/keyvault-secrets-agent/interfaces"
)

// Environment variables making up the configuration surface.
const (
	EnvServicePrincipalFile = "SERVICE_PRINCIPLE_FILE_PATH"
	EnvAuthorityServer      = "AZURE_AUTHORITY_SERVER"
	EnvVaultResource        = "VAULT_RESOURCE_NAME"
	EnvVaultBaseURL         = "VAULT_BASE_URL"
	EnvSecretsFolder        = "SECRETS_FOLDER"
	EnvSecretsKeys          = "SECRETS_KEYS"
	EnvCertsKeys            = "CERTS_KEYS"
)

// Defaults for the optional environment variables.
const (
	DefaultAuthorityServer = "https://login.microsoftonline.com/"
	DefaultVaultResource   = "https://vault.azure.net"
)

// Params holds the raw configuration values before validation and parsing.
// The cmd front end fills it from cli flags; Load fills it from the
// environment directly.
type Params struct {
	ServicePrincipalFile string
	AuthorityServer      string
	Audience             string
	VaultURL             string
	OutputFolder         string
	SecretsKeys          string
	CertsKeys            string
}

// Config is the complete agent configuration. It is built once and never
// mutated afterwards.
type Config struct {
	ServicePrincipal interfaces.ServicePrincipal

	// AuthorityServer is the AAD authority base URL used for token
	// acquisition, without the tenant segment.
	AuthorityServer string

	// Audience is the token audience requested for vault access.
	Audience string

	// VaultURL is the base URL of the vault to read from.
	VaultURL string

	// Layout holds the derived output directories.
	Layout interfaces.OutputLayout

	// SecretRequests and CertRequests are the parsed identifier lists.
	// An empty slice means the category is skipped.
	SecretRequests []interfaces.SecretRequest
	CertRequests   []interfaces.SecretRequest
}

// Load builds the configuration from the environment alone.
func Load() (Config, error) {
	return New(Params{
		ServicePrincipalFile: os.Getenv(EnvServicePrincipalFile),
		AuthorityServer:      os.Getenv(EnvAuthorityServer),
		Audience:             os.Getenv(EnvVaultResource),
		VaultURL:             os.Getenv(EnvVaultBaseURL),
		OutputFolder:         os.Getenv(EnvSecretsFolder),
		SecretsKeys:          os.Getenv(EnvSecretsKeys),
		CertsKeys:            os.Getenv(EnvCertsKeys),
	})
}

// New validates the raw values, loads the service principal descriptor and
// parses the identifier lists. All returned errors wrap
// interfaces.ErrConfig.
func New(p Params) (Config, error) {
	if p.ServicePrincipalFile == "" {
		return Config{}, fmt.Errorf("%w: %s is not set", interfaces.ErrConfig, EnvServicePrincipalFile)
	}

	sp, err := loadServicePrincipal(p.ServicePrincipalFile)
	if err != nil {
		return Config{}, err
	}

	if p.VaultURL == "" {
		return Config{}, fmt.Errorf("%w: %s is not set", interfaces.ErrConfig, EnvVaultBaseURL)
	}
	if p.OutputFolder == "" {
		return Config{}, fmt.Errorf("%w: %s is not set", interfaces.ErrConfig, EnvSecretsFolder)
	}

	authority := p.AuthorityServer
	if authority == "" {
		authority = DefaultAuthorityServer
	}
	// azidentity appends the tenant segment itself.
	authority = strings.TrimSuffix(authority, "/") + "/"

	audience := p.Audience
	if audience == "" {
		audience = DefaultVaultResource
	}

	return Config{
		ServicePrincipal: sp,
		AuthorityServer:  authority,
		Audience:         audience,
		VaultURL:         p.VaultURL,
		Layout:           interfaces.NewOutputLayout(p.OutputFolder),
		SecretRequests:   interfaces.ParseRequestList(p.SecretsKeys),
		CertRequests:     interfaces.ParseRequestList(p.CertsKeys),
	}, nil
}

// DefaultAudience reports whether the configured audience is the public
// vault resource. A non-default audience means the vault's authentication
// challenges will not match the public domain.
func (c Config) DefaultAudience() bool {
	return strings.TrimSuffix(c.Audience, "/") == DefaultVaultResource
}

func loadServicePrincipal(path string) (interfaces.ServicePrincipal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return interfaces.ServicePrincipal{}, fmt.Errorf("%w: service principal file %s: %v", interfaces.ErrConfig, path, err)
	}

	var sp interfaces.ServicePrincipal
	if err := json.Unmarshal(data, &sp); err != nil {
		return interfaces.ServicePrincipal{}, fmt.Errorf("%w: malformed service principal file %s: %v", interfaces.ErrConfig, path, err)
	}

	if err := sp.Validate(); err != nil {
		return interfaces.ServicePrincipal{}, err
	}

	return sp, nil
}
