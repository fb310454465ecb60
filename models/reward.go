package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reward is a pledge tier belonging to exactly one campaign.
//
// Rows come from three writers: the legacy importer (LegacyId set, possibly
// NeedsReview), the deduplicator (canonical rows, authoritative long-lived
// form) and the admin UI. Duplicate/legacy rows exist only until the
// deduplicator merges them away.
type Reward struct {
	ID                int             `gorm:"primary_key" json:"id"`
	CampaignId        int             `gorm:"index;not null" json:"campaign_id" binding:"required"`
	LegacyId          *string         `gorm:"size:64;uniqueIndex" json:"legacy_id"`
	Name              string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Description       string          `gorm:"type:text" json:"description"`
	MinimumAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"minimum_amount"`
	IsPhysical        bool            `gorm:"default:false" json:"is_physical"`
	RequiresShipping  bool            `gorm:"default:false" json:"requires_shipping"`
	EstimatedShipDate *time.Time      `json:"estimated_ship_date"`
	// NeedsReview marks rows the importer associated with the fallback
	// campaign because the legacy campaign id did not resolve.
	NeedsReview bool      `gorm:"default:false;index" json:"needs_review"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
