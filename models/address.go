package models

import (
	"fmt"
	"time"

	"github.com/reelfund/donors_backend/utils"
	"gorm.io/gorm"
)

// Address is a shipping address belonging to a donor. At most one primary
// address is expected per donor (not hard-enforced).
type Address struct {
	ID         int       `gorm:"primary_key" json:"id"`
	DonorId    int       `gorm:"index;not null" json:"donor_id" binding:"required"`
	Line1      string    `gorm:"size:255" json:"line1"`
	Line2      string    `gorm:"size:255" json:"line2"`
	City       string    `gorm:"size:100" json:"city"`
	State      string    `gorm:"size:100" json:"state"`
	PostalCode string    `gorm:"size:20" json:"postal_code"`
	Country    string    `gorm:"size:100" json:"country"`
	Phone      string    `gorm:"size:20" json:"phone"`
	IsPrimary  bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Address) BeforeSave(tx *gorm.DB) error {
	if a.Phone == "" {
		return nil
	}
	if err := utils.ValidatePhoneNumber(a.Phone, utils.CountryCode); err != nil {
		return fmt.Errorf("invalid phone number %q: %w", a.Phone, err)
	}
	return nil
}
