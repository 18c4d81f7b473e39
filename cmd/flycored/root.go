package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var (
	homeFlag string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "flycored",
	Short: "flycored — local MCP policy-enforcement daemon",
	Long:  "flycored mediates filesystem and process access for AI agent MCP clients against a declarative, operator-controlled policy.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "config home directory (default: $FLYCODE_HOME or ~/.flycode)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(versionCmd())
}

// resolveConfigHome follows the teacher's resolveConfigPath/GOCLAW_CONFIG
// precedence: explicit flag, then env var, then a fixed default.
func resolveConfigHome() string {
	if homeFlag != "" {
		return homeFlag
	}
	if v := os.Getenv("FLYCODE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flycode"
	}
	return filepath.Join(home, ".flycode")
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
