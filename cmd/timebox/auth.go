package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func prompt(r *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label+": ")
	s, err := r.ReadString('\n')
	if err != nil && !(err == io.EOF && s != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(s), nil
}

// ask fills *v from stdin unless a flag already set it.
func ask(cmd *cobra.Command, r *bufio.Reader, v *string, label string) error {
	if *v != "" {
		return nil
	}
	s, err := prompt(r, cmd.OutOrStdout(), label)
	if err != nil {
		return err
	}
	if s == "" {
		return fmt.Errorf("%s required", strings.ToLower(label))
	}
	*v = s
	return nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := bufio.NewReader(cmd.InOrStdin())
			for _, f := range []struct {
				v     *string
				label string
			}{{&email, "Email"}, {&name, "Name"}, {&password, "Password"}} {
				if err := ask(cmd, r, f.v, f.label); err != nil {
					return err
				}
			}
			if err := a.connect(cmd.Context()); err != nil && a.ids == nil {
				return err
			}
			if err := a.ids.Register(cmd.Context(), email, password, name); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the planner server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := bufio.NewReader(cmd.InOrStdin())
			if err := ask(cmd, r, &email, "Email"); err != nil {
				return err
			}
			if err := ask(cmd, r, &password, "Password"); err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				if a.ids == nil {
					return err
				}
				// a dead stored session must not block a fresh login
				a.log.Debug("restore before login", zap.Error(err))
			}
			if err := a.ids.SignIn(cmd.Context(), email, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			if err := a.ids.SignOut(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "server logout failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
