package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/users"
)

func usersCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User provisioning",
	}

	var email, password string
	var roles []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user and assign roles by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Users == nil || env.Roles == nil {
					return errNotConfigured("users")
				}
				in := users.CreateInput{Email: email, Password: password}
				for _, name := range roles {
					role, err := env.Roles.RoleByName(ctx, name)
					if err != nil {
						return fmt.Errorf("role %q: %w", name, err)
					}
					in.RoleIDs = append(in.RoleIDs, role.ID)
				}
				user, err := env.Users.Create(ctx, in)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "created user %d <%s>\n", user.ID, user.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&password, "password", "", "initial password (min 8 chars)")
	create.Flags().StringSliceVar(&roles, "role", nil, "role name, repeatable")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}
