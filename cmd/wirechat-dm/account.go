package main

import (
	"encoding/base64"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-dm/internal/account"
)

func newRegisterCmd(c *cli) *cobra.Command {
	var (
		form      account.SignUpForm
		imagePath string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			img, err := readImage(imagePath)
			if err != nil {
				return err
			}
			if len(img) > 0 {
				form.Image = base64.StdEncoding.EncodeToString(img)
			}

			s, err := c.session(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			user, err := s.SignUp(cmd.Context(), form)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s (%s)\n", user.DisplayName(), user.ID)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&imagePath, "image", "", "profile picture file")
	f.StringVar(&form.Name, "name", "", "first name")
	f.StringVar(&form.LastName, "last-name", "", "last name")
	f.StringVar(&form.Email, "email", "", "email address")
	f.StringVar(&form.Password, "password", "", "password")
	f.StringVar(&form.ConfirmPassword, "confirm-password", "", "password again")
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			user, err := s.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.DisplayName(), user.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the people you can chat with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.signedIn(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			contacts, err := s.Contacts(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, u := range contacts {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.DisplayName(), u.Email)
			}
			return tw.Flush()
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage this device's push token",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <token>",
			Short: "Register a push token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := c.signedIn(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return s.UpdatePushToken(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the push token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := c.signedIn(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return s.ClearPushToken(cmd.Context())
			},
		},
	)
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.signedIn(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return s.SignOut(cmd.Context())
		},
	}
}
