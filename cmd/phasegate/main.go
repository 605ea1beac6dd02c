// phasegate: phase-gated project workflow.
//
// phasegate scores a description of work, plans the phases it needs and
// gates every phase behind an approval that checks the task board. It runs
// as an MCP server over stdio and as a CLI over the same project store.
//
// Usage:
//
//	phasegate serve                 # Start MCP server (stdio transport)
//	phasegate plan "description"    # Create a project
//	phasegate status [project]      # Show phases and the approval preview
//	phasegate approve [project]     # Approve the current phase
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/phasegate/internal/config"
	"github.com/HendryAvila/phasegate/internal/logging"
	pgserver "github.com/HendryAvila/phasegate/internal/server"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

var (
	cfgPath string
	jsonOut bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "phasegate - phase-gated project workflow",
	Long: `phasegate turns a description of work into an ordered plan of phases and
gates each phase behind an approval that checks the task board.

Run "phasegate serve" to expose it to an AI coding tool over MCP:

  {
    "mcpServers": {
      "phasegate": {
        "command": "phasegate",
        "args": ["serve"]
      }
    }
  }`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "phasegate v%s\n", pgserver.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/phasegate/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger. CLI commands
// other than serve only log warnings unless --verbose is set.
func loadConfig(quiet bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "warn"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openService builds the workflow service for a one-shot CLI command.
func openService() (*workflow.Service, func(), error) {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return nil, nil, err
	}
	svc, cleanup, err := pgserver.NewService(cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {
		cleanup()
		_ = logging.Sync(logger)
	}, nil
}
