// Command apikeygen issues, inspects and validates API keys from the command
// line. Commands that touch stored keys use the storage configured for the
// server; generate, parse, encode, decode and hash work offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/algorithms"
	"github.com/tspence/api-key-generator/internal/infrastructure/audit"
	"github.com/tspence/api-key-generator/internal/infrastructure/monitoring"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	algorithm  string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           constants.ServiceName,
		Short:         "Issue, inspect and validate API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "configuration file (defaults to ./apikeygen.yaml or /etc/apikeygen/apikeygen.yaml)")
	root.PersistentFlags().StringVarP(&c.algorithm, "algorithm", "a", "", "configured algorithm name (defaults to the new-key algorithm)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		c.issueCommand(),
		c.validateCommand(),
		c.showCommand(),
		c.revokeCommand(),
		c.generateCommand(),
		c.parseCommand(),
		encodeCommand(),
		decodeCommand(),
		c.hashCommand(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.OutputPath = "stderr"
	if c.verbose {
		cfg.Log.Level = "debug"
	} else {
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

// algorithms loads the configured set and resolves --algorithm against it.
func (c *cli) algorithms() (*algorithms.Set, *apikey.Algorithm, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	set, err := algorithms.FromConfig(&cfg.APIKey)
	if err != nil {
		return nil, nil, err
	}
	alg, err := c.resolve(set)
	return set, alg, err
}

func (c *cli) resolve(set *algorithms.Set) (*apikey.Algorithm, error) {
	if c.algorithm == "" {
		return set.NewKey(), nil
	}
	alg, ok := set.Lookup(c.algorithm)
	if !ok {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unknown algorithm %q", c.algorithm))
	}
	return alg, nil
}

// session is an opened key store with the service in front of it.
type session struct {
	keys  service.KeyAppService
	close func()
}

func (c *cli) open(ctx context.Context) (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	backend, err := persistence.Open(ctx, cfg, nil, log)
	if err != nil {
		return nil, err
	}
	set, err := algorithms.FromConfig(&cfg.APIKey)
	if err != nil {
		_ = backend.Keys.Close()
		return nil, err
	}
	validator := apikey.NewValidator(persistence.NewKeyRepository(backend.Keys, set),
		apikey.WithLogger(log.WithComponent("apikey")))

	return &session{
		keys: service.NewKeyAppService(service.Dependencies{
			Generator:     validator,
			Authenticator: service.Uncached(validator),
			Store:         backend.Keys,
			Algorithms:    set,
			Auditor:       audit.NewLogPublisher(log),
			Logger:        log.WithComponent("cli"),
		}),
		close: func() {
			if err := backend.Keys.Close(); err != nil {
				log.Warn(ctx, "closing key store", logger.Err(err))
			}
		},
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
