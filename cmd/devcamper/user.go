// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/devcamper/devcamper/internal/auth"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.AddCommand(newUserAddCmd(deps))
	cmd.AddCommand(newUserResetCmd(deps))
	return cmd
}

type userAddFlags struct {
	name          string
	email         string
	password      string
	passwordStdin bool
	role          string
}

func newUserAddCmd(deps *Deps) *cobra.Command {
	f := &userAddFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user account",
		Long: `Register a user account. Unlike self-service registration this command
may create admin accounts, so it is how the first administrator is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserAdd(cmd, deps, f)
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&f.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&f.password, "password", "", "initial password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from standard input")
	cmd.Flags().StringVar(&f.role, "role", auth.RoleUser.String(), "role (user, publisher or admin)")
	_ = cmd.MarkFlagRequired("name")  //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

func runUserAdd(cmd *cobra.Command, deps *Deps, f *userAddFlags) error {
	role, err := auth.ParseRole(f.role)
	if err != nil {
		return err
	}

	password := f.password
	if f.passwordStdin {
		password, err = readPassword(cmd)
		if err != nil {
			return err
		}
	}
	if password == "" {
		return oops.Code("INVALID_ARGUMENT").Errorf("a password is required: use --password or --password-stdin")
	}

	cfg, err := loadValidConfig(cmd, deps)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, deps)

	st, err := deps.StoreOpener(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := newService(cfg, st.Users, deps, logger)
	if err != nil {
		return err
	}

	sess, err := svc.Register(cmd.Context(), auth.RegisterInput{
		Name:       f.name,
		Email:      f.email,
		Password:   password,
		Role:       role,
		Privileged: true,
	})
	if err != nil {
		return err
	}

	user, err := svc.CurrentUser(cmd.Context(), sess.UserID)
	if err != nil {
		return err
	}
	cmd.Printf("Created %s %s (%s)\n", user.Role, user.ID, user.Email)
	return nil
}

// readPassword reads the first line of the command's input.
func readPassword(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("INVALID_ARGUMENT").With("operation", "read password").Wrap(err)
		}
		return "", nil
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func newUserResetCmd(deps *Deps) *cobra.Command {
	var printLink bool

	cmd := &cobra.Command{
		Use:   "reset <email>",
		Short: "Send a password reset link",
		Long: `Start a password reset for the account with the given email. The reset
link is mailed through the configured mail driver; with the log driver it
appears in the log output. --print-link also prints it to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(cmd, deps)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, deps)

			st, err := deps.StoreOpener(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(cfg, st.Users, deps, logger)
			if err != nil {
				return err
			}

			token, err := svc.RequestReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cmd.Printf("Password reset email sent to %s\n", args[0])
			if printLink {
				cmd.Println(auth.ResetURL(cfg.Auth.ResetURLBase, token))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printLink, "print-link", false, "print the reset link")

	return cmd
}
