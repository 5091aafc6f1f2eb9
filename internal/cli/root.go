package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool

	// configExplicit records whether --config was passed on the command
	// line. An explicit path that does not exist is an error; the default
	// path falls back to built-in defaults.
	configExplicit bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "proxydeck",
	Short: "proxydeck - operator console for CLIProxyAPI",
	Long: `proxydeck is an operator console for a CLIProxyAPI service: it owns the
proxy process lifecycle, tails its log, aggregates per-account usage quotas
from local credential files or the proxy's management API, and provisions new
accounts over OAuth.

Usage:
  proxydeck [command] [flags]

Available Commands:
  serve      Run the console server (main mode)
  service    Control the proxy process (start, stop, restart, status)
  accounts   List and remove proxy accounts
  quotas     Show per-account quota usage
  logs       Tail or clear the proxy log
  doctor     Diagnose environment and configuration issues
  version    Print the console version

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --db string       Path to SQLite database (overrides config)
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "proxydeck [command] --help" for more information about a command.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		globalFlags.configExplicit = cmd.Flags().Changed("config")
		return nil
	},
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("PROXYDECK_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	dbPath := os.Getenv("PROXYDECK_DB")

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", dbPath, "Path to SQLite database (overrides config)")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	// Add version command
	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of proxydeck",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// printVersion prints the version information
func printVersion() {
	info := GetVersionInfo()
	println("proxydeck Version:", info.Version)
	println("Go Version:", info.GoVersion)
	println("OS/Arch:", info.OS+"/"+info.Arch)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// Version is stamped at build time via -ldflags.
var Version = "0.1.0"

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
