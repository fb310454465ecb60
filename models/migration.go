package models

import (
	"log"

	"github.com/reelfund/donors_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Campaign{}, &Reward{}, &Pledge{},
		&Donor{}, &Address{},
		&MergedAccount{},
		&AdminUser{},
		&RewardImportError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
