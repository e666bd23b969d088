package models

import (
	"log"

	"bitbucket.org/mmdatafocus/obligations_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&User{},
		&BankAccount{},
		&CostCenter{}, &Category{}, &SubCategory{},
		&Transaction{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
