// Package seed bootstraps demo data for local environments.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	brandingdomain "github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"gorm.io/gorm"
)

const (
	demoMerchantID  = "m_demo"
	demoDisplayName = "Demo Traders"
	demoSenderEmail = "billing@demo.invoiceflow.local"
)

// EnsureDemoMerchant seeds branding for a demo merchant so a fresh install
// can accept payment events without any manual setup.
func EnsureDemoMerchant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branding brandingdomain.MerchantBranding
		err := tx.WithContext(ctx).
			Where("merchant_id = ?", demoMerchantID).
			First(&branding).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		branding = brandingdomain.MerchantBranding{
			ID:          node.Generate(),
			MerchantID:  demoMerchantID,
			DisplayName: demoDisplayName,
			SenderEmail: demoSenderEmail,
			ThemeColor:  "#0f172a",
			Address:     "1 Demo Street",
			Website:     "https://demo.invoiceflow.local",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.WithContext(ctx).Create(&branding).Error
	})
}
