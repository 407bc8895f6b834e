// Package main provides the CLI entry point for the Craftdeck panel.
//
// Craftdeck manages modded Minecraft servers: it scans their
// configuration files, classifies each setting into an editable
// control, and synchronizes edits back to disk and to the running
// server over RCON.
//
// # Basic Usage
//
// Start the daemon:
//
//	craftdeck serve --config craftdeck.yaml
//
// Scan a server's configuration:
//
//	craftdeck scan <server-id>
//
// Edit a setting:
//
//	craftdeck entry set <entry-id> <value>
//
// # Environment Variables
//
//   - CRAFTDECK_CONFIG: Path to configuration file (default: craftdeck.yaml)
//   - CRAFTDECK_ADDR: Daemon API address for client commands
//   - CURSEFORGE_API_KEY: Catalog API key, referenced from the config file
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build metadata, set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "craftdeck",
		Short: "Craftdeck - Minecraft mod-server configuration panel",
		Long: `Craftdeck scans mod-server configuration files, classifies each
setting into a UI control (toggle, slider, dropdown, text input), and
synchronizes edits back to disk and to the running server over RCON.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildScanCmd(),
		buildEntryCmd(),
		buildTemplateCmd(),
		buildRestartDoneCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CRAFTDECK_CONFIG"); env != "" {
		return env
	}
	return "craftdeck.yaml"
}

func resolveAddr(addr string) string {
	if addr != "" {
		return addr
	}
	if env := os.Getenv("CRAFTDECK_ADDR"); env != "" {
		return env
	}
	return "http://127.0.0.1:8080"
}
