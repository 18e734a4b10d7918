package main

import (
	"github.com/spf13/cobra"

	// Backend drivers register themselves with the adapter registry
	_ "github.com/redbco/redb-federation/services/anchor/internal/database/mongodb"
	_ "github.com/redbco/redb-federation/services/anchor/internal/database/mysql"
	_ "github.com/redbco/redb-federation/services/anchor/internal/database/postgres"
	_ "github.com/redbco/redb-federation/services/anchor/internal/database/redis"
)

// setupCommands initializes all commands and their relationships
func setupCommands() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersionInfo(cmd.OutOrStdout())
	},
}
