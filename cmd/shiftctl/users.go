package main

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/services"
)

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
	}
	cmd.AddCommand(c.usersListCmd(), c.usersCreateCmd(), c.usersValidateCmd(), c.usersRoleCmd())
	return cmd
}

func (c *cli) usersListCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				users, err := stack.Users.List(ctx, pending)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(users)
				}
				c.renderUsers(users)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only accounts awaiting validation")
	return cmd
}

func (c *cli) usersCreateCmd() *cobra.Command {
	var input services.CreateUserInput
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Username = args[0]
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				user, err := stack.Users.Create(ctx, input)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(user)
				}
				c.renderUsers([]models.User{*user})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&input.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&input.Role, "role", models.RoleUser, "role (user|validator|admin)")
	cmd.Flags().BoolVar(&input.IsValidated, "validated", false, "create the account already validated")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) usersValidateCmd() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "validate <username>",
		Short: "Approve an account, or suspend it with --revoke",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				id, err := c.userByName(ctx, stack.Users, args[0])
				if err != nil {
					return err
				}
				user, err := stack.Users.SetValidated(ctx, id, !revoke)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(user)
				}
				c.renderUsers([]models.User{*user})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "suspend instead of approve")
	return cmd
}

func (c *cli) usersRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <username> <role>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStack(func(ctx context.Context, stack *services.Stack) error {
				id, err := c.userByName(ctx, stack.Users, args[0])
				if err != nil {
					return err
				}
				user, err := stack.Users.SetRole(ctx, id, args[1])
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(user)
				}
				c.renderUsers([]models.User{*user})
				return nil
			})
		},
	}
}

func (c *cli) renderUsers(users []models.User) {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.AppendHeader(table.Row{"ID", "Username", "Role", "Validated", "Last login"})
	for _, u := range users {
		lastLogin := ""
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{u.ID, u.Username, u.Role, u.IsValidated, lastLogin})
	}
	tw.Render()
}
