package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the backend",
		Long: `Signs a JWT for a user with the configured secret (ANNOTATOR_JWT_SECRET).
The backend records the token subject as the acting user on every change.`,
		Example: `  export ANNOTATOR_TOKEN=$(annotator token --user alice --ttl 8h)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = opts.cfg.UserID
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := auth.IssueToken([]byte(opts.cfg.JWTSecret), user, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id for the token subject (defaults to ANNOTATOR_USER)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
