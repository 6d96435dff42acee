package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/artpar/procgate/bootstrap"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the HTTP route table",
	Long: `Print every procedure reachable over HTTP with its method, pattern and
logical path. Lazy routers are resolved first so their routes are listed.

Examples:
  procgate routes
  procgate routes --config /etc/procgate/config.yaml`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	holder, err := loadQuiet()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := bootstrap.New(holder, bootstrap.Options{Version: version})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer app.Shutdown()

	matcher := app.Dispatcher.Matcher()
	if err := matcher.Preload(context.Background()); err != nil {
		return fmt.Errorf("load routers: %w", err)
	}

	prefix := holder.Get().RPC.Prefix
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATTERN\tPROCEDURE")
	for _, e := range matcher.Routes() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Method, prefix+e.Pattern, strings.Join(e.Path, "."))
	}
	return w.Flush()
}
