package models

import (
	"bitbucket.org/brokerlink/customs_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Entry{},
		&CommercialInvoice{},
		&CommercialInvoiceLine{},
		&CommercialInvoiceTariff{},
		&AddCvdCase{},
		&Container{},
		&EntryComment{},
		&PurgeMarker{},
		&DeliveryRun{},
		&DeliveryError{},
		&IdempotencyKey{},
	)
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "MigrateTable", "auto migrate", nil, err)
	}
}
