// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/devcamper/devcamper/internal/auth"
)

// NewTokenCmd creates the token subcommand.
func NewTokenCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect session tokens",
	}
	cmd.AddCommand(newTokenVerifyCmd(deps))
	return cmd
}

func newTokenVerifyCmd(deps *Deps) *cobra.Command {
	var lookup bool

	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a session token and print its subject",
		Long: `Verify the signature and expiry of a session token with the configured
signing secret and print the user id it was issued to. --lookup also loads
the user from the store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(cmd, deps)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, deps)
			authCfg := cfg.Auth.ToAuth()

			if !lookup {
				issuer, err := auth.NewSessionIssuer(authCfg.SigningSecret, authCfg.SessionLifetime(), nil, logger)
				if err != nil {
					return err
				}
				userID, err := issuer.Verify(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Valid session for user %s\n", userID)
				return nil
			}

			st, err := deps.StoreOpener(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := newService(cfg, st.Users, deps, logger)
			if err != nil {
				return err
			}
			user, err := svc.Authenticate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Valid session for user %s\n", user.ID)
			cmd.Printf("  name:  %s\n  email: %s\n  role:  %s\n", user.Name, user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().BoolVar(&lookup, "lookup", false, "load the user the token belongs to")

	return cmd
}
