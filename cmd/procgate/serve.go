package main

import (
	"fmt"

	"github.com/artpar/procgate/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the procedure server",
	Long: `Start the procgate server.

The server will:
  - Load configuration from procgate.yaml (or --config)
  - Or load configuration from PROCGATE_* environment variables
  - Open and migrate the database
  - Serve procedures over HTTP, JSON-RPC (/jsonrpc) and websocket (/ws)

Log level and rate limits are reloaded when the config file changes or
the process receives SIGHUP.

Examples:
  procgate serve
  procgate serve --config /etc/procgate/config.yaml
  procgate serve --hot-reload=false

  # Env vars only:
  PROCGATE_DATABASE_DRIVER=memory PROCGATE_AUTH_ADMIN_PASSWORD=secret procgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	holder, fromFile, err := loadHolder()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := bootstrap.New(holder, bootstrap.Options{Version: version})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if fromFile && hotReload {
		if err := holder.WatchFile(); err != nil {
			app.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		holder.WatchSignals()
	}

	return app.Run()
}
