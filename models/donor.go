package models

import (
	"context"
	"time"

	"github.com/reelfund/donors_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Donor is a person who has pledged. AuthUserId null means "legacy,
// unclaimed". At most one active (non-deleted) donor may hold a given
// auth user id; the account merger enforces this post-merge.
type Donor struct {
	ID          int     `gorm:"primary_key" json:"id"`
	Email       string  `gorm:"size:255;index;not null" json:"email" binding:"required"`
	FullName    string  `gorm:"size:255" json:"full_name"`
	FirstName   string  `gorm:"size:100" json:"first_name"`
	LastName    string  `gorm:"size:100" json:"last_name"`
	DisplayName string  `gorm:"size:255" json:"display_name"`
	AuthUserId  *string `gorm:"size:36;index" json:"auth_user_id"`
	// Deleted is a soft-delete flag. Merged-away donors are deactivated, never
	// hard-deleted, to preserve history.
	Deleted   bool      `gorm:"default:false;index" json:"deleted"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Pledges   []*Pledge  `gorm:"foreignKey:DonorId" json:"pledges,omitempty"`
	Addresses []*Address `gorm:"foreignKey:DonorId" json:"addresses,omitempty"`
}

// GetDonorByEmail resolves an active donor by email (case-insensitive,
// trimmed) with pledges (incl. campaign/reward names) and addresses loaded.
func GetDonorByEmail(ctx context.Context, db *gorm.DB, email string) (*Donor, error) {
	var donor Donor
	err := db.WithContext(ctx).
		Preload("Pledges").
		Preload("Pledges.Campaign").
		Preload("Pledges.Reward").
		Preload("Addresses").
		Where("LOWER(email) = ? AND deleted = false", utils.NormalizeEmail(email)).
		First(&donor).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &donor, nil
}

// PledgeTotals returns the count and summed amount of the donor's pledges.
func (d *Donor) PledgeTotals() (int, decimal.Decimal) {
	total := decimal.Zero
	for _, p := range d.Pledges {
		total = total.Add(p.Amount)
	}
	return len(d.Pledges), total
}
