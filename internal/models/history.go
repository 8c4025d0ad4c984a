package models

import "time"

// RecordCardStateHistory is an append-only audit row written on every state
// transition. Rows are never mutated.
type RecordCardStateHistory struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RecordCardID  string `gorm:"size:36;not null;index"`
	PreviousState int    `gorm:"not null"`
	NextState     int    `gorm:"not null"`
	GroupID       *uint
	UserID        string `gorm:"size:64"`
	Automatic     bool   `gorm:"default:false"`
	CreatedAt     time.Time `gorm:"index"`
}

// RecordCardReasignation is an append-only audit row written on every manual
// or rule-driven change of responsible group.
type RecordCardReasignation struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RecordCardID  string `gorm:"size:36;not null;index"`
	PreviousGroup *uint
	NextGroup     uint `gorm:"not null"`
	Reason        int  `gorm:"not null"`
	Comment       string `gorm:"type:text"`
	UserID        string `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"index"`
}
