package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/backoffice/internal/orders"
)

func ordersCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Move an order to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			status, err := orders.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withEnv(cmd, connect, func(ctx context.Context, env *Env) error {
				if env.Orders == nil {
					return errNotConfigured("orders")
				}
				order, err := env.Orders.UpdateStatus(ctx, id, status)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "order %d is now %s\n", order.ID, order.Status)
				return nil
			})
		},
	})
	return cmd
}
