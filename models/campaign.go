package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Campaign struct {
	ID            int             `gorm:"primary_key" json:"id"`
	LegacyId      *string         `gorm:"size:64;uniqueIndex" json:"legacy_id"`
	Title         string          `gorm:"size:255;not null" json:"title" binding:"required"`
	Description   string          `gorm:"type:text" json:"description"`
	GoalAmount    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"goal_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"current_amount"`
	BackersCount  int             `gorm:"default:0" json:"backers_count"`
	StartDate     *time.Time      `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	Status        CampaignStatus  `gorm:"size:20;not null;default:'draft'" json:"status"`
	Category      string          `gorm:"size:100" json:"category"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LegacyCampaignLookup maps legacy campaign identifiers to migrated campaign
// ids. Built once per import run; the importer resolves every reward row
// against it.
func LegacyCampaignLookup(ctx context.Context, db *gorm.DB) (map[string]int, error) {
	var campaigns []Campaign
	if err := db.WithContext(ctx).
		Select("id", "legacy_id").
		Where("legacy_id IS NOT NULL").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}

	lookup := make(map[string]int, len(campaigns))
	for _, c := range campaigns {
		if c.LegacyId != nil && *c.LegacyId != "" {
			lookup[*c.LegacyId] = c.ID
		}
	}
	return lookup, nil
}

// FirstCampaignId returns the lowest campaign id. The importer uses it as the
// fallback association when a legacy campaign id cannot be resolved, so a
// reward row is never dropped.
func FirstCampaignId(ctx context.Context, db *gorm.DB) (int, error) {
	var c Campaign
	if err := db.WithContext(ctx).Select("id").Order("id asc").First(&c).Error; err != nil {
		return 0, err
	}
	return c.ID, nil
}
