package repository

import (
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/models"
)

type Repositories struct {
	ShipmentRepository      interfaces.ShipmentRepository
	ProcessConfigRepository interfaces.ProcessConfigRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ShipmentRepository:      NewShipmentRepository(db),
		ProcessConfigRepository: NewProcessConfigRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Shipment{},
		&models.ProcessConfig{},
	)
}
