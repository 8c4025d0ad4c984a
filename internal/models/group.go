package models

import "time"

// Group is an organizational unit in the responsibility tree. Plate is the
// materialized path code: a child's plate always strictly extends its
// parent's, so ancestor checks are plain prefix comparisons.
type Group struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement"`
	Name               string  `gorm:"size:128;not null"`
	ParentID           *uint   `gorm:"index"`
	Plate              string  `gorm:"size:128;not null;index"`
	IsAmbit            bool    `gorm:"default:false"`
	AmbitCoordinatorID *uint   `gorm:"index"`
	Enabled            bool    `gorm:"default:true;index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Parent           *Group            `gorm:"foreignKey:ParentID"`
	AmbitCoordinator *Group            `gorm:"foreignKey:AmbitCoordinatorID"`
	Districts        []GroupDistrict   `gorm:"foreignKey:GroupID"`
	Permissions      []GroupPermission `gorm:"foreignKey:GroupID"`
}

// GroupDistrict grants a group visibility over a district.
type GroupDistrict struct {
	GroupID    uint `gorm:"primaryKey"`
	DistrictID uint `gorm:"primaryKey"`
}

// GroupPermission grants a permission code to a group.
type GroupPermission struct {
	GroupID   uint   `gorm:"primaryKey"`
	Code      string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// District is an administrative partition of the city.
type District struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	Name             string `gorm:"size:64;not null"`
	AllowsDerivation bool   `gorm:"default:true"`
	Enabled          bool   `gorm:"default:true"`
}
