package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pledge is a monetary commitment by a donor to a campaign, optionally
// fulfilled via a reward. RewardId, when set, must reference a reward in the
// same campaign as the pledge.
type Pledge struct {
	ID             int             `gorm:"primary_key" json:"id"`
	DonorId        int             `gorm:"index;not null" json:"donor_id" binding:"required"`
	CampaignId     int             `gorm:"index;not null" json:"campaign_id" binding:"required"`
	RewardId       *int            `gorm:"index" json:"reward_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount" binding:"required"`
	Status         PledgeStatus    `gorm:"size:20;not null;default:'pending'" json:"status"`
	Provider       string          `gorm:"size:50" json:"provider"`
	TransactionId  string          `gorm:"size:128" json:"transaction_id"`
	ShippingStatus ShippingStatus  `gorm:"size:20;default:'not_shipped'" json:"shipping_status"`
	TrackingNumber string          `gorm:"size:128" json:"tracking_number"`
	ShippingNotes  string          `gorm:"type:text" json:"shipping_notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Campaign *Campaign `gorm:"foreignKey:CampaignId" json:"campaign,omitempty"`
	Reward   *Reward   `gorm:"foreignKey:RewardId" json:"reward,omitempty"`
}
