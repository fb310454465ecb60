package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MergedAccount is the immutable audit record of a donor merge. Rows are only
// ever inserted; no update or delete path exists anywhere in this codebase.
type MergedAccount struct {
	ID               int             `gorm:"primary_key" json:"id"`
	SourceDonorId    int             `gorm:"index;not null" json:"source_donor_id"`
	SourceEmail      string          `gorm:"size:255;not null" json:"source_email"`
	TargetDonorId    int             `gorm:"index;not null" json:"target_donor_id"`
	TargetEmail      string          `gorm:"size:255;not null" json:"target_email"`
	TargetAuthUserId string          `gorm:"size:36" json:"target_auth_user_id"`
	PledgesMoved     int             `gorm:"not null" json:"pledges_moved"`
	AmountMoved      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount_moved"`
	Reason           string          `gorm:"size:100;not null" json:"reason"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
