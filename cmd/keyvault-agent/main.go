package main

import (
	"context"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/keyvault-secrets-agent/agent"
	"github.com/ruteri/keyvault-secrets-agent/common"
	"github.com/ruteri/keyvault-secrets-agent/config"
	"github.com/ruteri/keyvault-secrets-agent/keyvault"
)

var vaultFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:     "service-principle-file",
		Required: true,
		Usage:    "Path to the service principal JSON descriptor",
		EnvVars:  []string{config.EnvServicePrincipalFile},
	},
	&cli.StringFlag{
		Name:    "authority-server",
		Value:   config.DefaultAuthorityServer,
		Usage:   "AAD authority base URL used for token acquisition",
		EnvVars: []string{config.EnvAuthorityServer},
	},
	&cli.StringFlag{
		Name:    "vault-resource",
		Value:   config.DefaultVaultResource,
		Usage:   "Token audience for vault access",
		EnvVars: []string{config.EnvVaultResource},
	},
	&cli.StringFlag{
		Name:     "vault-url",
		Required: true,
		Usage:    "Base URL of the vault to read from",
		EnvVars:  []string{config.EnvVaultBaseURL},
	},
}

var outputFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:     "output-folder",
		Required: true,
		Usage:    "Base folder for the secrets/, certs/ and keys/ output directories",
		EnvVars:  []string{config.EnvSecretsFolder},
	},
	&cli.StringFlag{
		Name:    "secrets-keys",
		Usage:   "Semicolon-delimited name[:version] list of secrets to retrieve",
		EnvVars: []string{config.EnvSecretsKeys},
	},
	&cli.StringFlag{
		Name:    "certs-keys",
		Usage:   "Semicolon-delimited name[:version] list of certificates to retrieve",
		EnvVars: []string{config.EnvCertsKeys},
	},
}

var logFlags []cli.Flag = []cli.Flag{
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "keyvault-agent",
		Usage: "add 'service' tag to logs",
	},
}

const usage string = `One-shot key vault secret materialization agent
Authenticates with a service principal, retrieves the configured secrets and
certificates from the vault, and writes each to a file under the output
folder. Exits non-zero on the first failure.`

func main() {
	app := &cli.App{
		Name:  "keyvault-agent",
		Usage: usage,
		Flags: append(append(append([]cli.Flag{}, vaultFlags...), outputFlags...), logFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: common.Version,
			})

			if cCtx.Bool("log-uid") {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			cfg, err := config.New(config.Params{
				ServicePrincipalFile: cCtx.String("service-principle-file"),
				AuthorityServer:      cCtx.String("authority-server"),
				Audience:             cCtx.String("vault-resource"),
				VaultURL:             cCtx.String("vault-url"),
				OutputFolder:         cCtx.String("output-folder"),
				SecretsKeys:          cCtx.String("secrets-keys"),
				CertsKeys:            cCtx.String("certs-keys"),
			})
			if err != nil {
				logger.Error("Failed to load configuration", "err", err)
				return err
			}

			logger.Info("Using vault", "url", cfg.VaultURL)
			logger.Info("Using authority", "url", cfg.AuthorityServer, "clientId", cfg.ServicePrincipal.ClientID)

			vaultClient, err := keyvault.New(cfg, logger)
			if err != nil {
				logger.Error("Failed to create vault client", "err", err)
				return err
			}

			m := &agent.Materializer{
				Config: cfg,
				Vault:  vaultClient,
				Log:    logger,
			}

			logger.Info("Grabbing secrets from key vault")
			if err := m.Run(context.Background()); err != nil {
				logger.Error("Materialization run failed", "err", err)
				return err
			}

			logger.Info("Done")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
