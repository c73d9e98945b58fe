package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

const jwksPath = "/.well-known/jwks.json"

func newJWKSCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "List the signing keys the core publishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := app.querier()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), app.timeout())
			defer cancel()

			var jwks jwtx.JWKS
			if err := q.SendGetRequest(ctx, jwksPath, nil, &jwks); err != nil {
				return err
			}

			if app.jsonOutput() {
				return printJSON(cmd, jwks)
			}
			for _, k := range jwks.Keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", k.Kid, k.Alg, k.Kty)
			}
			return nil
		},
	}
}
