package models

import (
	"context"
	"errors"
	"time"

	"github.com/reelfund/donors_backend/config"
	"gorm.io/gorm"
)

type AdminUser struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username" binding:"required"`
	Name      string    `gorm:"size:255" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      AdminRole `gorm:"size:20;not null;default:'Support'" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetAdminByUsername loads an active admin user, checking a Redis cache
// before falling back to the store.
func GetAdminByUsername(ctx context.Context, username string) (*AdminUser, error) {
	var admin AdminUser
	exists, err := config.GetRedisObject("AdminUser:"+username, &admin)
	if err != nil {
		return nil, err
	}
	if exists {
		return &admin, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Where("username = ? AND is_active = true", username).
		Take(&admin).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("unauthorized")
		}
		return nil, err
	}
	_ = config.SetRedisObject("AdminUser:"+username, &admin, 10*time.Minute)
	return &admin, nil
}
