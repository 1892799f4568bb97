package core

import (
	"time"

	"github.com/bitswalk/yfab/src/yfab/auth"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	Long: `Mints a signed token accepted by the mutating endpoints of yfab serve.
The signing secret is generated on first use and kept in the yfab database.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("subject", "cli", "Name recorded with operations triggered by this token")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: 30 days)")
}

func runToken(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Shutdown()

	jwtService, err := auth.NewJWTService(auth.DefaultJWTConfig(), database)
	if err != nil {
		return err
	}
	token, err := jwtService.GenerateToken(subject, ttl)
	if err != nil {
		return err
	}

	return output.Print(outputFormat, token, func() {
		output.PrintMessage(token.Token)
		output.PrintWarning("Expires " + token.ExpiresAt.Local().Format(time.RFC1123))
	})
}
