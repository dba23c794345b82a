package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <owner-id>",
	Short: "Mint a bearer token for an owner",
	Long: `Mint a signed bearer token for the given owner id using the
configured auth secret. The token is stateless; any server sharing the
secret will accept it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		token, err := auth.New([]byte(cfg.AuthSecret)).Token(args[0])
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
