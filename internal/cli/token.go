package cli

import (
	"fmt"
	"time"

	"github.com/ppiankov/tagreveal/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tokenTTL time.Duration

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Issue a signed access token for the token auth provider",
	Long: `Token signs an HS256 access token for address with auth.token_secret.
Pass it to reveal with --token when auth.provider is "token".

Example:
  TAGREVEAL_AUTH_TOKEN_SECRET=s3cret tagreveal token 0x00000000000000000000000000000000000000a1 --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if !auth.IsAddress(args[0]) {
			return fmt.Errorf("not an address: %q", args[0])
		}
		if cfg.Auth.TokenSecret == "" {
			return fmt.Errorf("auth.token_secret is not set")
		}

		token, err := auth.IssueToken([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenIssuer, args[0], tokenTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
