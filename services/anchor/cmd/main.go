package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-federation/pkg/config"
	"github.com/redbco/redb-federation/pkg/logger"
)

const envPrefix = "REDB_FEDERATION_"

var (
	configFile string
	logLevel   string
	version    = "0.1.0"
	// Build information variables
	Version   = "dev"     // Default version for development
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

// printVersionInfo displays detailed version information
func printVersionInfo(w io.Writer) {
	fmt.Fprintf(w, "reDB Federation v%s (build %s)\n", version, Version)
	fmt.Fprintf(w, "Built: %s, from commit: %s\n", BuildTime, GitCommit)
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redb-federation",
	Short: "Cross-database query federation",
	Long: "Runs SQL queries that join tables living in different databases. Tables are addressed as " +
		"alias.database[.schema].table where alias names a configured connection.",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Minimum log level (debug, info, warn, error); overrides log.level")

	setupCommands()
}

// loadConfig reads the config file and environment and builds the logger.
func loadConfig(logOut io.Writer) (*config.Config, []config.ConnectionEntry, *logger.Logger, error) {
	cfg, connections, err := config.Load(configFile, envPrefix)
	if err != nil {
		return nil, nil, nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.GetString(config.KeyLogLevel, "info")
	}
	log := logger.New("federation", version)
	log.SetLevel(logger.ParseLevel(level))
	if logOut != nil {
		log.SetOutput(logOut)
	}
	return cfg, connections, log, nil
}

func main() {
	Execute()
}
