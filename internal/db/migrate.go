package db

import (
	"fmt"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Group{},
		&models.GroupDistrict{},
		&models.GroupPermission{},
		&models.District{},
		&models.ElementDetail{},
		&models.DerivationDirect{},
		&models.DerivationDistrict{},
		&models.DerivationPolygon{},
		&models.Ubication{},
		&models.RecordCard{},
		&models.PossibleSimilarRecord{},
		&models.Comment{},
		&models.Conversation{},
		&models.Attachment{},
		&models.RecordCardAudit{},
		&models.RecordCardStateHistory{},
		&models.RecordCardReasignation{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DefaultDistricts lists the city's administrative districts in their
// official numbering order.
var DefaultDistricts = []string{
	"Ciutat Vella",
	"Eixample",
	"Sants-Montjuic",
	"Les Corts",
	"Sarria-Sant Gervasi",
	"Gracia",
	"Horta-Guinardo",
	"Nou Barris",
	"Sant Andreu",
	"Sant Marti",
}

// SeedDistricts upserts the administrative districts. Safe to run on every
// startup.
func SeedDistricts(db *gorm.DB, names []string) error {
	for i, name := range names {
		district := models.District{
			ID:               uint(i + 1),
			Name:             name,
			AllowsDerivation: true,
			Enabled:          true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&district)
		if result.Error != nil {
			return fmt.Errorf("db: seed district %q: %w", name, result.Error)
		}
	}
	return nil
}
