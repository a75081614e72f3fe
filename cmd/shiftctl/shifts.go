package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/charlesng35/shiftlog/internal/services"
)

func (c *cli) shiftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shifts",
		Short: "Inspect and sweep shift sessions",
	}
	cmd.AddCommand(c.shiftsCloseExpiredCmd())
	return cmd
}

func (c *cli) shiftsCloseExpiredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-expired",
		Short: "Close every open shift session whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				closed, err := stack.Shifts.CloseExpired(ctx)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(closed)
				}
				if len(closed) == 0 {
					fmt.Fprintln(c.out, "no expired shifts")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(c.out)
				tw.AppendHeader(table.Row{"ID", "User", "Opened", "Closed"})
				for _, s := range closed {
					user := s.UserID
					if s.User != nil {
						user = s.User.Username
					}
					tw.AppendRow(table.Row{s.ID, user, s.OpenedAt.Format(time.RFC3339), s.ClosesAt.Format(time.RFC3339)})
				}
				tw.AppendFooter(table.Row{"", "", "Total", len(closed)})
				tw.Render()
				return nil
			})
		},
	}
}
