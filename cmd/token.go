package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	authpostgres "github.com/frahmantamala/payment-reconciler/internal/auth/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Access token commands",
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an access token for a merchant",
	Long:  `Issue a merchant access token without a password, for operators and integration tests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := issueToken(tokenMerchantEmail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
	},
}

var tokenMerchantEmail string

func issueToken(email string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := authpostgres.NewMerchantRepository(sqlx.NewDb(sqlDB, "pgx")).GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("merchant %s not found", email)
	}
	if !m.IsActive {
		return fmt.Errorf("merchant %s is inactive", email)
	}

	tokenGen, err := newTokenGenerator(cfg.Security)
	if err != nil {
		return err
	}

	tokens, err := tokenGen.GenerateAccessToken(m.ID, m.Email)
	if err != nil {
		return err
	}

	fmt.Printf("merchant_id: %s\nexpires_at:  %s\n%s %s\n",
		m.ID, tokens.ExpiresAt.Format(time.RFC3339), tokens.TokenType, tokens.AccessToken)
	return nil
}

func init() {
	issueTokenCmd.Flags().StringVar(&tokenMerchantEmail, "merchant", "", "Merchant email")
	_ = issueTokenCmd.MarkFlagRequired("merchant")

	tokenCmd.AddCommand(issueTokenCmd)

	rootCmd.AddCommand(tokenCmd)
}
