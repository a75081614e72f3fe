package main

import (
	"context"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/charlesng35/shiftlog/internal/services"
)

const cliDescriptionWidth = 60

func (c *cli) actionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect logged actions and their validation ledger",
	}
	cmd.AddCommand(c.actionsPendingCmd(), c.actionsHistoryCmd())
	return cmd
}

func (c *cli) actionsPendingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List actions awaiting a validation decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				views, total, err := stack.Actions.ListPending(ctx, limit, 0)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(c.out)
				tw.AppendHeader(table.Row{"ID", "Author", "Category", "Created", "Description"})
				for _, v := range views {
					author := v.AuthorID
					if v.Author != nil {
						author = v.Author.Username
					}
					tw.AppendRow(table.Row{v.ID, author, v.Category, v.CreatedAt.Format(time.RFC3339), truncate(v.Description, cliDescriptionWidth)})
				}
				tw.AppendFooter(table.Row{"", "", "", "Total", total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func (c *cli) actionsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <action-id>",
		Short: "Show the validation ledger of an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				entries, err := stack.Ledger.History(ctx, args[0])
				if err != nil {
					return err
				}
				status, err := stack.Ledger.CurrentStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(map[string]any{"status": status, "entries": entries})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(c.out)
				tw.AppendHeader(table.Row{"#", "When", "Validator", "Kind", "Outcome", "Comment"})
				for _, entry := range entries {
					validator := entry.ValidatorID
					if entry.Validator != nil {
						validator = entry.Validator.Username
					}
					tw.AppendRow(table.Row{entry.Sequence, entry.CreatedAt.Format(time.RFC3339), validator, entry.Kind, entry.Outcome, truncate(entry.Comment, cliDescriptionWidth)})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "Current", status})
				tw.Render()
				return nil
			})
		},
	}
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
