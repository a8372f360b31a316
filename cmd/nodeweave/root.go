package main

import (
	"fmt"
	"os"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nodeweave",
	Short: "NodeWeave runs node graphs that share a global variable store",
	Long: `NodeWeave builds graphs of typed nodes whose outputs flow along connections
and into named variables. Graphs are stored as JSON or YAML documents and can be
run from the terminal, served over HTTP or exposed to agents through MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a nodeweave.yaml config file")
	rootCmd.PersistentFlags().String("env", "", "Path to a dotenv file (default .env)")
	rootCmd.PersistentFlags().String("store", "", "Graph store driver: memory, file or redis")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
}

// loadConfig applies the persistent flags on top of the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Driver, _ = cmd.Flags().GetString("store")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newApp loads the configuration and assembles the application for cmd.
func newApp(cmd *cobra.Command, opts cli.Options) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	opts.Debug, _ = cmd.Flags().GetBool("debug")
	if opts.In == nil {
		opts.In = cmd.InOrStdin()
	}
	if opts.Out == nil {
		opts.Out = cmd.OutOrStdout()
	}
	return cli.NewApp(opts)
}
