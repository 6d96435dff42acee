package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/bootstrap"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/spf13/cobra"
)

var callToken string

var callCmd = &cobra.Command{
	Use:   "call <procedure> [json-input]",
	Short: "Invoke a procedure in-process",
	Long: `Invoke a procedure by its dotted path without starting the server.
The output, or the error envelope, is printed as JSON.

Examples:
  procgate call ping
  procgate call planet.find '{"id":"..."}'
  procgate call planet.create '{"name":"Pluto"}' --token "$TOKEN"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&callToken, "token", "", "bearer token passed as the authorization context")
}

func runCall(cmd *cobra.Command, args []string) error {
	var input any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
			return fmt.Errorf("parse input: %w", err)
		}
	}

	holder, err := loadQuiet()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := bootstrap.New(holder, bootstrap.Options{Version: version})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Shutdown()

	initial := procedure.Context{}
	if callToken != "" {
		initial[app.AuthorizationKey] = "Bearer " + callToken
	}

	out, callErr := a.Dispatcher.Call(context.Background(), strings.Split(args[0], "."), input, initial)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if callErr != nil {
		_ = enc.Encode(callErr)
		return fmt.Errorf("call %s failed", args[0])
	}
	return enc.Encode(out)
}
