// Package cli implements the backofficectl administration commands.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// RoleAdmin is satisfied by *rbac.Service.
type RoleAdmin interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	RoleByName(ctx context.Context, name string) (rbac.Role, error)
	RolePermissions(ctx context.Context, roleID int64) ([]rbac.FeaturePermission, error)
	ApplyMatrix(ctx context.Context, m rbac.Matrix) ([]rbac.Role, error)
}

// OrderAdmin is satisfied by *orders.Service.
type OrderAdmin interface {
	UpdateStatus(ctx context.Context, orderID int64, status orders.Status) (orders.Order, error)
}

// UserAdmin is satisfied by *users.Service.
type UserAdmin interface {
	Create(ctx context.Context, in users.CreateInput) (users.User, error)
}

// JobAdmin is satisfied by *JobsCLI.
type JobAdmin interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Env holds the backends a command may touch. Fields a command does not use
// may be nil.
type Env struct {
	Migrate func(ctx context.Context) error
	Roles   RoleAdmin
	Orders  OrderAdmin
	Users   UserAdmin
	Jobs    JobAdmin
}

// Connector opens the backends for a single command run. The returned
// function releases them.
type Connector func(ctx context.Context) (*Env, func(), error)

// NewRootCommand assembles the command tree.
func NewRootCommand(connect Connector) *cobra.Command {
	root := &cobra.Command{
		Use:           "backofficectl",
		Short:         "Administration tool for the order back-office",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		migrateCmd(connect),
		rolesCmd(connect),
		ordersCmd(connect),
		usersCmd(connect),
		jobsCmd(connect),
	)
	return root
}

func migrateCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Migrate == nil {
					return errNotConfigured("migrate")
				}
				if err := env.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func withEnv(cmd *cobra.Command, connect Connector, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, release, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, env)
}

func errNotConfigured(what string) error {
	return fmt.Errorf("backofficectl: %s backend not configured", what)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
