package models

import "time"

// ElementDetail is the theme classifying a record: it carries the similarity
// thresholds, SLA hours, and the per-state derivation rule sets.
type ElementDetail struct {
	ID                                 uint   `gorm:"primaryKey;autoIncrement"`
	Description                        string `gorm:"size:256;not null"`
	SimilarityHours                    *int
	SimilarityMeters                   *int
	SLAHours                           *int
	ValidatedReassignable              bool `gorm:"default:false"`
	AllowMultiderivationOnReassignment bool `gorm:"default:false"`
	Autovalidation                     bool `gorm:"default:false"`
	ExternalValidator                  string `gorm:"size:64"`
	Enabled                            bool   `gorm:"default:true;index"`
	CreatedAt                          time.Time
	UpdatedAt                          time.Time

	DerivationsDirect   []DerivationDirect   `gorm:"foreignKey:ElementDetailID"`
	DerivationsDistrict []DerivationDistrict `gorm:"foreignKey:ElementDetailID"`
	DerivationsPolygon  []DerivationPolygon  `gorm:"foreignKey:ElementDetailID"`
}

// DerivationDirect routes a theme+state pair to a single group. Within a theme
// the record state must not repeat across direct rows.
type DerivationDirect struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	ElementDetailID uint `gorm:"not null;index:idx_direct_theme_state"`
	RecordState     int  `gorm:"not null;index:idx_direct_theme_state"`
	GroupID         uint `gorm:"not null"`
	Enabled         bool `gorm:"default:true"`

	Group Group `gorm:"foreignKey:GroupID"`
}

// DerivationDistrict routes a theme+state pair to one group per district.
// Coverage for a given state must be complete or absent entirely.
type DerivationDistrict struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	ElementDetailID uint `gorm:"not null;index:idx_district_theme_state"`
	RecordState     int  `gorm:"not null;index:idx_district_theme_state"`
	DistrictID      uint `gorm:"not null"`
	GroupID         uint `gorm:"not null"`
	Enabled         bool `gorm:"default:true"`

	Group Group `gorm:"foreignKey:GroupID"`
}

// DerivationPolygon routes a theme+state pair by zone and polygon code.
// District-mode rows additionally require the ubication's district to match.
type DerivationPolygon struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ElementDetailID uint   `gorm:"not null;index:idx_polygon_theme_state"`
	RecordState     int    `gorm:"not null;index:idx_polygon_theme_state"`
	Zone            string `gorm:"size:32;not null"`
	PolygonCode     string `gorm:"size:32;not null"`
	DistrictMode    bool   `gorm:"default:false"`
	DistrictID      *uint
	GroupID         uint `gorm:"not null"`
	Enabled         bool `gorm:"default:true"`

	Group Group `gorm:"foreignKey:GroupID"`
}
