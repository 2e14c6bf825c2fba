package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd(app func() *App) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account, or log into it if it exists with the same password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			name, err := a.askUsername(username)
			if err != nil {
				return err
			}
			pw, err := a.askPassword(password)
			if err != nil {
				return err
			}

			id, err := a.client.Register(cmd.Context(), name, pw)
			if err != nil {
				return fmt.Errorf("register failed: %w", err)
			}
			if err := a.remember(name); err != nil {
				return err
			}
			a.printf("Registered %s (id %s)\n", name, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	return cmd
}

func newLoginCmd(app func() *App) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session",
		Long: `Open a session with username and password.

Without --username the token stored by an earlier login is used to
restore the session, so no password is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()

			if username == "" && a.creds.Token != "" && a.creds.ServerURL == a.config.ServerURL {
				if _, err := a.client.LoginByToken(cmd.Context(), a.creds.Token); err == nil {
					if err := a.remember(""); err != nil {
						return err
					}
					a.printf("Logged in as %s\n", a.creds.UserName)
					return nil
				}
			}

			name, err := a.askUsername(username)
			if err != nil {
				return err
			}
			pw, err := a.askPassword(password)
			if err != nil {
				return err
			}
			if _, err := a.client.Login(cmd.Context(), name, pw); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.remember(name); err != nil {
				return err
			}
			a.printf("Logged in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	return cmd
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Close the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}
			if err := a.client.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			if err := a.forget(); err != nil {
				return err
			}
			a.printf("Logged out\n")
			return nil
		},
	}
}
