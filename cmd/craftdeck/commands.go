// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it
// to its handler.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the panel daemon.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Craftdeck panel daemon",
		Long: `Start the panel daemon.

The daemon will:
1. Load configuration from the specified file (or craftdeck.yaml)
2. Open the configuration store (sqlite by default)
3. Load classifier rule documents
4. Start the HTTP API and metrics listeners
5. Schedule periodic rescans and watch server config directories

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  craftdeck serve

  # Start with custom config
  craftdeck serve --config /etc/craftdeck/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Scan Command
// =============================================================================

// buildScanCmd creates the "scan" command that triggers a rescan of one
// server's configuration files through the running daemon.
func buildScanCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "scan <server-id>",
		Short: "Scan a server's configuration files",
		Args:  cobra.ExactArgs(1),
		Example: `  craftdeck scan 7f3a...

  # Against a remote daemon
  craftdeck scan 7f3a... --addr http://panel.internal:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), resolveAddr(addr), args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

// =============================================================================
// Entry Commands
// =============================================================================

// buildEntryCmd creates the "entry" command group for reading and
// editing configuration entries.
func buildEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Inspect and edit configuration entries",
	}
	cmd.AddCommand(buildEntryGetCmd(), buildEntrySetCmd(), buildEntryListCmd())
	return cmd
}

func buildEntryGetCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "get <entry-id>",
		Short: "Show one configuration entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntryGet(cmd.Context(), resolveAddr(addr), args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

func buildEntrySetCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "set <entry-id> <value>",
		Short: "Apply a new value to a configuration entry",
		Long: `Apply a new value to a configuration entry.

The value is validated against the entry's control, written to the
config file, and pushed to the running server over RCON when the
setting is hot-applicable. Otherwise the server is flagged as needing
a restart.`,
		Args: cobra.ExactArgs(2),
		Example: `  craftdeck entry set 9c1b... 30
  craftdeck entry set 9c1b... peaceful`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntrySet(cmd.Context(), resolveAddr(addr), args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

func buildEntryListCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "list <server-id>",
		Short: "List a server's configuration entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntryList(cmd.Context(), resolveAddr(addr), args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

// =============================================================================
// Template Commands
// =============================================================================

// buildTemplateCmd creates the "template" command group.
func buildTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage configuration templates",
	}
	cmd.AddCommand(
		buildTemplateListCmd(),
		buildTemplateApplyCmd(),
		buildTemplateSnapshotCmd(),
		buildTemplateDeleteCmd(),
	)
	return cmd
}

func buildTemplateListCmd() *cobra.Command {
	var (
		addr      string
		modpackID int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates for a modpack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateList(cmd.Context(), resolveAddr(addr), modpackID)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	cmd.Flags().IntVar(&modpackID, "modpack", 0, "Modpack ID to list templates for")
	_ = cmd.MarkFlagRequired("modpack")
	return cmd
}

func buildTemplateApplyCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "apply <template-id> <server-id>",
		Short: "Apply a template to a server",
		Long: `Apply a template to a server.

Items are applied in order through the sync engine. Application stops
at the first failing item; items already applied stay applied.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateApply(cmd.Context(), resolveAddr(addr), args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

func buildTemplateSnapshotCmd() *cobra.Command {
	var (
		addr        string
		name        string
		description string
		modpackID   int
		isDefault   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot <server-id>",
		Short: "Capture a server's current configuration as a template",
		Args:  cobra.ExactArgs(1),
		Example: `  craftdeck template snapshot 7f3a... --name "tuned survival" --modpack 925200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateSnapshot(cmd.Context(), resolveAddr(addr), args[0], name, description, modpackID, isDefault)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&description, "description", "", "Template description")
	cmd.Flags().IntVar(&modpackID, "modpack", 0, "Modpack ID the template belongs to")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Mark as the modpack's default template")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("modpack")
	return cmd
}

func buildTemplateDeleteCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateDelete(cmd.Context(), resolveAddr(addr), args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}

// =============================================================================
// Restart Done Command
// =============================================================================

// buildRestartDoneCmd creates the "restart-done" command that confirms
// a server restart and clears its pending-restart state.
func buildRestartDoneCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "restart-done <server-id>",
		Short: "Confirm a server restart, clearing pending edits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestartDone(cmd.Context(), resolveAddr(addr), args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address")
	return cmd
}
