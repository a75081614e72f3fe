package main

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/app"
	"github.com/charlesng35/shiftlog/internal/database"
	"github.com/charlesng35/shiftlog/internal/security"
)

var errAuditFailed = errors.New("security audit reported failures")

func (c *cli) auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check the deployment's security posture",
		Long:  "audit inspects administrators, pending accounts, token signing and transport settings. It exits non-zero when a check fails.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDatabase(func(cfg *app.Config, db *gorm.DB) error {
				ctx := context.Background()

				// Read the persisted secret without generating one; a missing secret is a finding.
				secret := strings.TrimSpace(cfg.Auth.JWT.Secret)
				if secret == "" {
					stored, err := database.GetSystemSetting(ctx, db, database.JWTSecretSetting)
					if err != nil {
						return err
					}
					secret = stored
				}

				result := security.NewAuditService(db, cfg, secret).Run(ctx)
				if c.asJSON {
					if err := c.printJSON(result); err != nil {
						return err
					}
				} else {
					tw := table.NewWriter()
					tw.SetOutputMirror(c.out)
					tw.AppendHeader(table.Row{"Check", "Status", "Message", "Remediation"})
					for _, check := range result.Checks {
						tw.AppendRow(table.Row{check.ID, strings.ToUpper(string(check.Status)), check.Message, check.Remediation})
					}
					tw.AppendFooter(table.Row{
						"",
						"",
						"pass/warn/fail",
						strings.Join([]string{
							strconv.Itoa(result.Summary[string(security.StatusPass)]),
							strconv.Itoa(result.Summary[string(security.StatusWarn)]),
							strconv.Itoa(result.Summary[string(security.StatusFail)]),
						}, "/"),
					})
					tw.Render()
				}

				if result.Failed() {
					return errAuditFailed
				}
				return nil
			})
		},
	}
}
