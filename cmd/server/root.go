package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/auth"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/config"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "cognishape",
		Short:        "Real-time session coordinator for child activity monitoring",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var (
		port   int
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port (overrides PORT)")
	cmd.Flags().StringVar(&dbPath, "db", "data/sessions.db", "sqlite database path (overrides DB_PATH)")
	return cmd
}

// newTokenCmd mints join tokens for local development.
func newTokenCmd() *cobra.Command {
	var (
		secret   string
		issuer   string
		childIDs []string
		roles    []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a join token for the given children",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			if len(childIDs) == 0 {
				return fmt.Errorf("at least one --child is required")
			}

			now := time.Now()
			token, err := auth.NewJWTAuthorizer(secret, issuer, nil).Sign(auth.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    issuer,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
				ChildIDs: childIDs,
				Roles:    roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (JWT_ISSUER)")
	cmd.Flags().StringSliceVar(&childIDs, "child", nil, "child id the token may join; repeatable, * for all")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "allowed role (child or caretaker); repeatable, empty for both")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
