package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/retention"
	"github.com/willtech3/powertoken/internal/scoring"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", st.Dialect())
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete users with incomplete credentials and everything they own",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			rep, err := retention.New(st, log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned %d users, deleted %d\n", rep.Scanned, len(rep.Deleted))
			for _, name := range rep.Deleted {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	})

	var yes bool
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every row of every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			if err := retention.New(st, log).Purge(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "all content deleted")
			return nil
		},
	}
	purgeCmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion of all data")
	rootCmd.AddCommand(purgeCmd)

	var username, date string
	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Print a user's decayed progress for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			clk := clock.New()
			day := clock.Today(clk)
			if date != "" {
				d, err := time.Parse(model.DateLayout, date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()

			u, err := st.Users().GetByUsername(cmd.Context(), username)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			d, err := st.Days().GetByDate(cmd.Context(), u.ID, day)
			if err != nil {
				_, _ = fmt.Fprintf(out, "%s %s: no events recorded\n", u.Username, day.Format(model.DateLayout))
				return nil
			}
			score, possible, err := scoring.New(st, clk).Score(cmd.Context(), d)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "%s %s: score %.0f of %d, progress %.3f\n",
				u.Username, day.Format(model.DateLayout), score, possible, scoring.Progress(score, possible))
			return nil
		},
	}
	scoreCmd.Flags().StringVarP(&username, "user", "u", "", "Username (required)")
	scoreCmd.Flags().StringVarP(&date, "date", "d", "", "Day to score, YYYY-MM-DD (defaults to today)")
	_ = scoreCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(scoreCmd)
}
