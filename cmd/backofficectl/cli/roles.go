package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

func rolesCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect and provision role permission matrices",
	}
	cmd.AddCommand(rolesListCmd(connect), rolesShowCmd(connect), rolesApplyCmd(connect))
	return cmd
}

func rolesListCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Roles == nil {
					return errNotConfigured("roles")
				}
				roles, err := env.Roles.ListRoles(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				printf(tw, "ID\tNAME\tDESCRIPTION\n")
				for _, r := range roles {
					printf(tw, "%d\t%s\t%s\n", r.ID, r.Name, r.Description)
				}
				return tw.Flush()
			})
		},
	}
}

func rolesShowCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the permission matrix of a role as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Roles == nil {
					return errNotConfigured("roles")
				}
				role, err := env.Roles.RoleByName(ctx, args[0])
				if err != nil {
					return fmt.Errorf("role %q: %w", args[0], err)
				}
				perms, err := env.Roles.RolePermissions(ctx, role.ID)
				if err != nil {
					return err
				}
				return rbac.MatrixFor(role, perms).Encode(cmd.OutOrStdout())
			})
		},
	}
}

func rolesApplyCmd(connect Connector) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "apply -f <matrix.yaml>",
		Short: "Create roles and replace their permissions from a YAML matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			matrix, err := rbac.ParseMatrix(in)
			if err != nil {
				return err
			}
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Roles == nil {
					return errNotConfigured("roles")
				}
				applied, err := env.Roles.ApplyMatrix(ctx, matrix)
				for _, r := range applied {
					printf(cmd.OutOrStdout(), "applied %s (id %d)\n", r.Name, r.ID)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "-", "matrix file, - for stdin")
	return cmd
}
