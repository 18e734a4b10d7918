package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redbco/redb-federation/pkg/config"
	"github.com/redbco/redb-federation/pkg/logger"
	"github.com/redbco/redb-federation/services/anchor/internal/engine"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the federation HTTP API",
	Long: "Opens every configured connection and serves /federation/query, /federation/stream, " +
		"/federation/plan, /federation/sessions, /health and /metrics until interrupted. " +
		"SIGHUP reloads the federation timeouts, row limit and log level.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, connections, log, err := loadConfig(nil)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessions, err := openSessions(ctx, connections, log)
		if err != nil {
			return err
		}
		log.Infof("Opened %d connections", len(sessions.List()))

		eng := engine.NewEngine(cfg, sessions, log)
		if err := eng.Start(ctx); err != nil {
			sessions.CloseAll()
			return err
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

	wait:
		for {
			select {
			case <-ctx.Done():
				break wait
			case <-hup:
				next, _, err := config.Load(configFile, envPrefix)
				if err != nil {
					log.Errorf("Failed to reload configuration: %v", err)
					continue
				}
				applyServeFlags(cmd, next)
				if logLevel == "" {
					log.SetLevel(logger.ParseLevel(next.GetString(config.KeyLogLevel, "info")))
				}
				eng.Reload(next)
			}
		}
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return eng.Stop(shutdownCtx)
	},
}

// applyServeFlags lets serve flags win over the file and environment, also
// on reload.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Update(map[string]string{config.KeyHTTPPort: strconv.Itoa(servePort)})
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port; overrides server.http_port")
}
