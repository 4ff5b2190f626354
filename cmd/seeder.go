package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	authpostgres "github.com/frahmantamala/payment-reconciler/internal/auth/postgres"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/webhookevent"
	paymentpostgres "github.com/frahmantamala/payment-reconciler/internal/payment/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a sample merchant and payment methods for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("failed to get sql db: %v", err)
		}
		defer sqlDB.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if clearData {
			clearSeededData(ctx, db)
		}

		cost := cfg.Security.BCryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), cost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		merchants := authpostgres.NewMerchantRepository(sqlx.NewDb(sqlDB, "pgx"))
		m, err := merchants.Create(ctx, &merchant.Merchant{
			Name:         "Demo Store",
			Email:        "merchant@mail.com",
			PasswordHash: string(hash),
			MerchantCode: "DEMO001",
			IsActive:     true,
		})
		if err != nil {
			log.Fatalf("failed to insert merchant: %v", err)
		}
		fmt.Println("Seeded merchant:", m.Email, m.ID)

		methods := paymentpostgres.NewPaymentMethodRepository(db)
		samples := []paymentmethod.PaymentMethod{
			{Type: paymentmethod.TypeCreditCard, ProviderName: "paystack", LastFourDigits: strPtr("4081"), ExpiryMonth: strPtr("12"), ExpiryYear: strPtr("2030"), HolderName: strPtr("Demo Customer")},
			{Type: paymentmethod.TypeBankTransfer, ProviderName: "paystack", Metadata: datatypes.JSON(`{"bank_code":"058"}`)},
		}

		for _, sample := range samples {
			var exists int64
			if err := db.WithContext(ctx).Model(&paymentmethod.PaymentMethod{}).
				Where("merchant_id = ? AND type = ?", m.ID, sample.Type).
				Count(&exists).Error; err != nil {
				log.Fatalf("failed to check payment method %s: %v", sample.Type, err)
			}
			if exists > 0 {
				continue
			}

			method := sample
			method.MerchantID = m.ID
			method.IsActive = true
			if err := methods.Create(ctx, &method); err != nil {
				log.Fatalf("failed to insert payment method %s: %v", sample.Type, err)
			}
			fmt.Printf("Seeded payment method: %s %s\n", method.Type, method.ID)
		}

		fmt.Println("Sample data seeded successfully")
	},
}

func clearSeededData(ctx context.Context, db *gorm.DB) {
	tx := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := tx.Delete(&webhookevent.WebhookEvent{}).Error; err != nil {
		log.Fatalf("failed to clear webhook events: %v", err)
	}
	if err := tx.Delete(&payment.Payment{}).Error; err != nil {
		log.Fatalf("failed to clear payments: %v", err)
	}
	fmt.Println("Cleared payments and webhook events")
}

func strPtr(s string) *string {
	return &s
}
