package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boddenberg/leadchat-go/internal/config"
	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-go/internal/service"
)

// newScoreCmd scores a hypothetical lead, handy for tuning the brackets.
func newScoreCmd() *cobra.Command {
	var (
		attrs        domain.LeadAttributes
		company      string
		phone        string
		projectType  string
		industry     string
		budget       string
		timeline     string
		outputAsJSON bool
	)
	optional := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the qualification score for a set of lead attributes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attrs.Company = optional(company)
			attrs.Phone = optional(phone)
			attrs.ProjectType = optional(projectType)
			attrs.Industry = optional(industry)
			attrs.BudgetRange = optional(budget)
			attrs.Timeline = optional(timeline)

			score, err := service.ScoreLead(attrs)
			if err != nil && !service.IsIncomplete(err) {
				return err
			}

			out := cmd.OutOrStdout()
			if outputAsJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"qualification_score": score.Value,
					"status":              score.Tier,
					"template_variant":    service.VariantFor(score.Tier),
				})
			}
			fmt.Fprintf(out, "score: %d\ntier:  %s\n", score.Value, score.Tier)
			if err != nil {
				fmt.Fprintf(out, "note:  %v\n", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&attrs.Name, "name", "", "contact name")
	f.StringVar(&attrs.Email, "email", "", "contact email")
	f.StringVar(&company, "company", "", "company")
	f.StringVar(&phone, "phone", "", "phone number")
	f.StringVar(&projectType, "project-type", "", "project type")
	f.StringVar(&industry, "industry", "", "industry")
	f.StringVar(&budget, "budget", "", "budget range, e.g. 25k-50k")
	f.StringVar(&timeline, "timeline", "", "timeline, e.g. 1-3 months")
	f.BoolVar(&outputAsJSON, "json", false, "print JSON")
	return cmd
}

// newHashPasswordCmd produces the bcrypt hash for ADMIN_PASSWORD_HASH.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			hash, err := service.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// newDigestCmd sends the daily digest once, outside the cron schedule.
func newDigestCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send the daily lead digest for one day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := time.Now().AddDate(0, 0, -1)
			if day != "" {
				parsed, err := time.ParseInLocation(time.DateOnly, day, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --day: %w", err)
				}
				target = parsed
			}

			cfg := config.Load()
			logger := observability.NewLogger(cfg.LogLevel, "leadchat")
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			admin := service.NewAdminService(a.store, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
			job := service.NewDigestJob(admin, a.store, a.sender, a.site, time.Local, logger)
			return job.Send(ctx, target)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to report (YYYY-MM-DD, default yesterday)")
	return cmd
}

