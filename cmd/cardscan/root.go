package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/common/config"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/scanner"
	"card-scan-workers/internal/vision"
)

// commandContext resolves configuration and the scan service once per
// invocation. Subcommands that never touch the catalog skip it entirely.
type commandContext struct {
	configPath  string
	catalogPath string
	jsonOutput  bool
	verbose     bool

	cfg      *config.Config
	backends *scanner.Backends
	service  *scanner.Service
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFromFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if c.catalogPath != "" {
		cfg.Catalog.Backend = config.CatalogFile
		cfg.Catalog.File.Path = c.catalogPath
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) newLogger() logger.Logger {
	if c.verbose {
		return logger.NewStructured("debug", "console")
	}
	return logger.NewStructured("error", "console")
}

func (c *commandContext) scanService() (*scanner.Service, error) {
	if c.service != nil {
		return c.service, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	log := c.newLogger()

	backends, err := scanner.BuildBackends(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	opts, err := scanner.RetrieverOptions(cfg.Matching)
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	c.backends = backends
	c.service = scanner.NewService(
		vision.NewOpenAIExtractor(scanner.VisionConfig(cfg.Vision), log),
		cardmatch.NewRetriever(backends.Searcher, backends.Cache, opts, log),
		log,
		scanner.WithBatchConcurrency(cfg.Scanner.BatchConcurrency),
	)
	return c.service, nil
}

func (c *commandContext) close() {
	if c.backends != nil {
		_ = c.backends.Close()
	}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "cardscan",
		Short:         "Identify trading cards against the catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.catalogPath, "catalog", "", "Use a JSON catalog file instead of the configured backend")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log retrieval steps")

	rootCmd.AddCommand(newIdentifyCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newSimilarityCommand())

	return rootCmd
}
