package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the API access token",
		Long: `Show the token the running server accepts for /api requests.

Use this when you've scrolled past the startup message or need to
call the API from a script.

Example:
  curl -H "Authorization: Bearer $(adlift token -q)" localhost:8080/api/tests`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			token := cfg.Token
			if token == "" {
				data, err := os.ReadFile(tokenFilePath())
				if err != nil {
					if os.IsNotExist(err) {
						return fmt.Errorf("no server running. Start with: adlift serve")
					}
					return fmt.Errorf("failed to read token file: %w", err)
				}
				token = strings.TrimSpace(string(data))
			}
			if token == "" {
				return fmt.Errorf("token file is empty. Restart the server with: adlift serve")
			}

			if quiet {
				fmt.Fprintln(out, token)
				return nil
			}
			fmt.Fprintf(out, "API token: %s\n", token)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Send it as 'Authorization: Bearer <token>' or open http://localhost:%d/api/tests?token=%s\n", cfg.HTTPPort, token)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the token")
	return cmd
}
