package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

type revokeResponse struct {
	Status                string   `json:"status"`
	SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
}

type sessionInfo struct {
	Status             string         `json:"status"`
	SessionHandle      string         `json:"sessionHandle"`
	UserID             string         `json:"userId"`
	RecipeUserID       string         `json:"recipeUserId"`
	TenantID           string         `json:"tenantId"`
	UserDataInDatabase map[string]any `json:"userDataInDatabase"`
	UserDataInJWT      map[string]any `json:"userDataInJWT"`
	Expiry             int64          `json:"expiry"`
	TimeCreated        int64          `json:"timeCreated"`
}

func newSessionsCmd(app *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke sessions",
	}

	var allTenants bool
	cmd.PersistentFlags().BoolVar(&allTenants, "all-tenants", false, "Act across every tenant")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <user-id>",
			Short: "List live session handles of a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out struct {
					Status         string   `json:"status"`
					SessionHandles []string `json:"sessionHandles"`
				}
				query := url.Values{
					"userId":                {args[0]},
					"fetchAcrossAllTenants": {strconv.FormatBool(allTenants)},
				}
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendGetRequest(ctx, querier.TenantPath(app.tenant(), "/recipe/session/user"), query, &out)
				})
				if err != nil {
					return err
				}
				if err := statusError(out.Status); err != nil {
					return err
				}
				return app.printList(cmd, out.SessionHandles)
			},
		},
		&cobra.Command{
			Use:   "info <handle>",
			Short: "Show one session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out sessionInfo
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendGetRequest(ctx, "/recipe/session", url.Values{"sessionHandle": {args[0]}}, &out)
				})
				if err != nil {
					return err
				}
				if err := statusError(out.Status); err != nil {
					return err
				}
				if app.jsonOutput() {
					return printJSON(cmd, out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "handle:   %s\n", out.SessionHandle)
				fmt.Fprintf(w, "user:     %s (recipe user %s)\n", out.UserID, out.RecipeUserID)
				fmt.Fprintf(w, "tenant:   %s\n", out.TenantID)
				fmt.Fprintf(w, "created:  %s\n", time.UnixMilli(out.TimeCreated).UTC().Format(time.RFC3339))
				fmt.Fprintf(w, "expires:  %s\n", time.UnixMilli(out.Expiry).UTC().Format(time.RFC3339))
				return nil
			},
		},
		&cobra.Command{
			Use:   "revoke <handle>...",
			Short: "Revoke sessions by handle",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out revokeResponse
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendPostRequest(ctx, "/recipe/session/remove",
						map[string]any{"sessionHandles": args}, &out)
				})
				if err != nil {
					return err
				}
				return app.printList(cmd, out.SessionHandlesRevoked)
			},
		},
		&cobra.Command{
			Use:   "revoke-user <user-id>",
			Short: "Revoke every session of a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out revokeResponse
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendPostRequest(ctx, querier.TenantPath(app.tenant(), "/recipe/session/remove"),
						map[string]any{"userId": args[0], "revokeAcrossAllTenants": allTenants}, &out)
				})
				if err != nil {
					return err
				}
				return app.printList(cmd, out.SessionHandlesRevoked)
			},
		},
	)
	return cmd
}

// call runs fn with a querier and the request timeout.
func (c *cli) call(cmd *cobra.Command, fn func(ctx context.Context, q querier.Querier) error) error {
	q, err := c.querier()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout())
	defer cancel()
	return fn(ctx, q)
}

func (c *cli) printList(cmd *cobra.Command, handles []string) error {
	if c.jsonOutput() {
		if handles == nil {
			handles = []string{}
		}
		return printJSON(cmd, handles)
	}
	for _, h := range handles {
		fmt.Fprintln(cmd.OutOrStdout(), h)
	}
	return nil
}
