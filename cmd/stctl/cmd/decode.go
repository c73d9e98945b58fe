package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

type decodedToken struct {
	Header   jwtx.Header    `json:"header"`
	Payload  map[string]any `json:"payload"`
	Verified bool           `json:"verified"`
	Expired  bool           `json:"expired"`
}

func newDecodeCmd(app *cli) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "decode <access-token>",
		Short: "Decode an access token",
		Long: `Decode prints the header and payload of an access token. With --verify
the signature is checked against the keys the core publishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := jwtx.Parse(args[0])
			if err != nil {
				return err
			}
			payload, err := jwtx.ValidateStructure(parsed.Payload)
			if err != nil {
				return err
			}

			out := decodedToken{
				Header:  parsed.Header,
				Expired: payload.CheckExpiry(time.Now()) != nil,
			}
			if err := json.Unmarshal(parsed.Payload, &out.Payload); err != nil {
				return err
			}

			if verify {
				q, err := app.querier()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), app.timeout())
				defer cancel()

				keys := jwtx.NewRemoteKeySet(func(ctx context.Context) (jwtx.JWKS, error) {
					var jwks jwtx.JWKS
					err := q.SendGetRequest(ctx, jwksPath, nil, &jwks)
					return jwks, err
				}, jwtx.RemoteKeySetOptions{})
				if err := jwtx.Verify(ctx, parsed, keys); err != nil {
					return err
				}
				out.Verified = true
			}

			if app.jsonOutput() {
				return printJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "kid:      %s (%s, version %s)\n", out.Header.Kid, out.Header.Alg, out.Header.Version)
			fmt.Fprintf(w, "session:  %s\n", payload.SessionHandle)
			fmt.Fprintf(w, "user:     %s\n", payload.UserID)
			fmt.Fprintf(w, "tenant:   %s\n", payload.TenantID)
			fmt.Fprintf(w, "expires:  %s\n", payload.Expiry().UTC().Format(time.RFC3339))
			if payload.ParentRefreshTokenHash1 != "" {
				fmt.Fprintln(w, "rotation: pending commit")
			}
			if out.Expired {
				fmt.Fprintln(w, "status:   expired")
			}
			if verify {
				fmt.Fprintln(w, "signature: valid")
			}
			if len(payload.UserPayload) > 0 {
				fmt.Fprintln(w, "payload:")
				return printJSON(cmd, payload.UserPayload)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the signature against the core's JWKS")
	return cmd
}
