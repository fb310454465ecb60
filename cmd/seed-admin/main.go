// seed-admin creates or updates the initial super-admin console user.
//
// Usage:
//
//	SUPABASE_DB_URL=... ADMIN_USERNAME=ops ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"gorm.io/gorm"
)

func main() {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUsername == "" || adminPassword == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_USERNAME and ADMIN_PASSWORD env vars are required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set SUPABASE_DB_URL or DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.AdminUser
	err = db.WithContext(ctx).Model(&models.AdminUser{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup admin user: %v\n", err)
			os.Exit(1)
		}
		u := models.AdminUser{
			Username: adminUsername,
			Password: string(hashed),
			Role:     models.AdminRoleSuper,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created super admin %q (id %d)\n", adminUsername, u.ID)
		return
	}

	// Existing user: reset password, promote to super, reactivate.
	updates := map[string]interface{}{
		"password":  string(hashed),
		"role":      models.AdminRoleSuper,
		"is_active": true,
	}
	if err := db.WithContext(ctx).Model(&models.AdminUser{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	// Session cache may hold the stale role.
	_ = config.RemoveRedisKey("AdminUser:" + adminUsername)
	fmt.Printf("updated super admin %q (id %d)\n", adminUsername, existing.ID)
}
