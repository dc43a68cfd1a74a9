// Package cli wires the crewgo command tree.
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyike/CrewGo/config"
)

const Version = "0.1.0"

// newConfigManager opens the managed config file, seeding it from
// defaults plus environment overrides on first run. Afterwards the
// file is the source of truth; edits to it reload between sessions.
// CREWGO_CONFIG overrides the file location.
func newConfigManager() (*config.Manager, error) {
	return config.NewManager(
		config.WithConfigPath(os.Getenv("CREWGO_CONFIG")),
		config.WithInitialConfig(config.DefaultConfig()),
	)
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var mgr *config.Manager

	// current snapshots the managed config; each session runs on its
	// own immutable copy even while the watcher applies file edits.
	current := func() *config.Config {
		cfg := mgr.Get()
		return &cfg
	}

	rootCmd := &cobra.Command{
		Use:   "crewgo",
		Short: "CrewGo - multi-agent trading deliberation",
		Long: `CrewGo runs a crew of LLM trading agents through a structured deliberation:
symbol discovery, positions, open debate, cross critique, a devil's advocate
pass and a performance-weighted vote, with a mediator on deadlock.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			mgr, err = newConfigManager()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg := mgr.Get()
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return mgr.Watch(cmd.Context(), func(config.Config) {
				log.Printf("configuration reloaded from %s", mgr.Path())
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: prompt for symbols and deliberate.
			symbols, err := PromptForSymbols()
			if err != nil {
				return err
			}
			return runDeliberation(cmd.Context(), current(), symbols, false)
		},
	}

	rootCmd.AddCommand(newDeliberateCmd(current))
	rootCmd.AddCommand(newHistoryCmd(current))
	rootCmd.AddCommand(newShowCmd(current))
	rootCmd.AddCommand(newConfigCmd(current))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newDeliberateCmd(current func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliberate [SYMBOL...]",
		Short: "Run a deliberation session over the given symbols",
		Long: `Run one full deliberation session over the given ticker symbols.
Example: crewgo deliberate AAPL NVDA --rounds=3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := current()
			if rounds, _ := cmd.Flags().GetInt("rounds"); rounds > 0 {
				cfg.DeliberationRounds = rounds
			}
			transcript, _ := cmd.Flags().GetBool("transcript")
			return runDeliberation(cmd.Context(), cfg, args, transcript)
		},
	}

	cmd.Flags().Int("rounds", 0, "Override the number of discussion rounds")
	cmd.Flags().Bool("transcript", false, "Print the full transcript after the decision")

	return cmd
}

func newHistoryCmd(current func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past deliberation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runHistory(cmd.Context(), current(), limit)
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum sessions to list")
	return cmd
}

func newShowCmd(current func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show [SESSION_ID]",
		Short: "Show one stored session with its transcript and votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), current(), args[0])
		},
	}
}

func newConfigCmd(current func() *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(current())
		},
	})

	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crewgo %s\n", Version)
		},
	}
}
