package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func loginCmd(c *cli) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}
			if err := a.Session.Login(cmd.Context(), args[0], password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			user := a.Session.State().User
			printf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			a.Session.Logout()
			printf(cmd.OutOrStdout(), "Logged out\n")
			return nil
		},
	}
}

func registerCmd(c *cli) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Create an account (does not log in)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}
			result := a.Session.Register(cmd.Context(), args[0], args[1], password)
			if !result.Success {
				return fmt.Errorf("registration failed: %s", result.Error)
			}
			printf(cmd.OutOrStdout(), "Registered %s (id %d). Run `spectra login %s` to sign in.\n", result.User.Username, result.User.ID, result.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func whoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			st := a.Session.State()
			if !st.IsAuthenticated {
				if st.Error != "" {
					return fmt.Errorf("not logged in: %s", st.Error)
				}
				printf(cmd.OutOrStdout(), "Not logged in\n")
				return nil
			}
			u := st.User
			printf(cmd.OutOrStdout(), "%s <%s>\nrole: %s\nmember since: %s\n", u.Username, u.Email, u.Role, u.CreatedAt)
			return nil
		},
	}
}

func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("password is required")
	}
	return secret, nil
}
