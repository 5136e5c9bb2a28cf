package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/weconnect"
)

func init() {
	usersCmd := &cobra.Command{Use: "users", Short: "User onboarding"}

	// create
	var goalPeriod string
	createCmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create a user with no linked accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			u, err := st.Users().Create(cmd.Context(), &model.User{Username: args[0], GoalPeriod: goalPeriod})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&goalPeriod, "goal-period", "daily", "Goal period (daily or weekly)")
	usersCmd.AddCommand(createCmd)

	// list
	usersCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users and their onboarding state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			users, err := st.Users().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tUSERNAME\tGOAL\tWECONNECT\tFITBIT\tREGISTERED")
			for _, u := range users {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%t\t%s\n",
					u.ID, u.Username, u.GoalPeriod, u.WCID != "" && u.WCToken != "", u.FBToken != "",
					u.RegisteredOn.Format(model.DateLayout))
			}
			return tw.Flush()
		},
	})

	// link-weconnect
	var email, password string
	linkWCCmd := &cobra.Command{
		Use:   "link-weconnect USERNAME",
		Short: "Log in to WEconnect and store the user's id and token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			u, err := st.Users().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			creds, err := weconnect.New(cfg.WEconnectURL, cfg.HTTPTimeout, cfg.APIRateLimit).Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := st.Users().UpdateWEconnect(cmd.Context(), u.ID, creds.UserID, creds.Token, u.GoalPeriod); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "linked %s to WEconnect user %s\n", u.Username, creds.UserID)
			return nil
		},
	}
	linkWCCmd.Flags().StringVarP(&email, "email", "e", "", "WEconnect email (required)")
	linkWCCmd.Flags().StringVarP(&password, "password", "p", "", "WEconnect password (required)")
	_ = linkWCCmd.MarkFlagRequired("email")
	_ = linkWCCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(linkWCCmd)

	// link-fitbit
	var token string
	linkFBCmd := &cobra.Command{
		Use:   "link-fitbit USERNAME",
		Short: "Store a Fitbit OAuth access token for the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.DB().Close() }()
			u, err := st.Users().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := st.Users().UpdateFitbit(cmd.Context(), u.ID, token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "linked %s to Fitbit\n", u.Username)
			return nil
		},
	}
	linkFBCmd.Flags().StringVarP(&token, "token", "t", "", "Fitbit access token (required)")
	_ = linkFBCmd.MarkFlagRequired("token")
	usersCmd.AddCommand(linkFBCmd)

	rootCmd.AddCommand(usersCmd)
}
