package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesng35/shiftlog/internal/services"
)

func (c *cli) notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect user notifications",
	}
	cmd.AddCommand(c.notificationsUnreadCmd())
	return cmd
}

func (c *cli) notificationsUnreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread <username>",
		Short: "Print a user's unread notification count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				id, err := c.userByName(ctx, stack.Users, args[0])
				if err != nil {
					return err
				}
				count, err := stack.Notifications.UnreadCount(ctx, id)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(map[string]int64{"count": count})
				}
				fmt.Fprintln(c.out, count)
				return nil
			})
		},
	}
}
