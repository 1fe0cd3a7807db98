package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/config"
	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "graphdump",
		Short: "Inspect and maintain the graph store behind a session factory",
		Long: `graphdump - read raw bounded subgraphs from the configured graph store.

The store is described by a YAML file:

  logging:
    debug: false
  store:
    driver: neo4j        # neo4j, badger or memory
    neo4j:
      uri: neo4j://localhost:7687
      username: neo4j
      password: secret
      database: neo4j
    badger:
      dir: ./data
    prefix: [ogm]

Examples:
  graphdump fetch --config store.yaml --label Artist --depth 2
  graphdump fetch --config store.yaml --label Album --id 4:abc:12 --depth -1
  graphdump count --config store.yaml --label Artist
  graphdump purge --config store.yaml --yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "store configuration file (default: in-memory store)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newFetchCmd(opts))
	rootCmd.AddCommand(newCountCmd(opts))
	rootCmd.AddCommand(newPurgeCmd(opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// openStore loads the configuration named by --config and opens its store.
func (o *globalOptions) openStore(ctx context.Context) (graph.Store, io.Closer, *zap.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if o.verbose {
		cfg.Logging.Debug = true
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	store, closer, err := config.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, closer, logger, nil
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.configFile == "" {
		return config.LoadConfiguration(strings.NewReader(""))
	}

	f, err := os.Open(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", o.configFile, err)
	}
	defer f.Close()

	return config.LoadConfiguration(f)
}
