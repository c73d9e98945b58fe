package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

func newRolesCmd(app *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage roles and their permissions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <role> [permission...]",
			Short: "Create a role or add permissions to it",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out struct {
					Status         string `json:"status"`
					CreatedNewRole bool   `json:"createdNewRole"`
				}
				perms := args[1:]
				if perms == nil {
					perms = []string{}
				}
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendPutRequest(ctx, "/recipe/role",
						map[string]any{"role": args[0], "permissions": perms}, &out)
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
				if out.CreatedNewRole {
					fmt.Fprintf(cmd.OutOrStdout(), "created role %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "updated role %s\n", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list [role]",
			Short: "List roles, or the permissions of one role",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var (
					out struct {
						Status      string   `json:"status"`
						Roles       []string `json:"roles"`
						Permissions []string `json:"permissions"`
					}
					path  = "/recipe/roles"
					query url.Values
				)
				if len(args) == 1 {
					path = "/recipe/role/permissions"
					query = url.Values{"role": {args[0]}}
				}
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendGetRequest(ctx, path, query, &out)
				})
				if err != nil {
					return err
				}
				if err := statusError(out.Status); err != nil {
					return err
				}

				items := out.Roles
				if len(args) == 1 {
					items = out.Permissions
				}
				return app.printList(cmd, items)
			},
		},
		&cobra.Command{
			Use:   "grant <user-id> <role>",
			Short: "Give a user a role in the selected tenant",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var out struct {
					Status                 string `json:"status"`
					DidUserAlreadyHaveRole bool   `json:"didUserAlreadyHaveRole"`
				}
				err := app.call(cmd, func(ctx context.Context, q querier.Querier) error {
					return q.SendPutRequest(ctx, querier.TenantPath(app.tenant(), "/recipe/user/role"),
						map[string]any{"userId": args[0], "role": args[1]}, &out)
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
				if out.DidUserAlreadyHaveRole {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already has %s\n", args[0], args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", args[1], args[0])
				}
				return nil
			},
		},
	)
	return cmd
}
