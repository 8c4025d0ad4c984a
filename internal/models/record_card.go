package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ubication is the location attached to a record. XETRS89A/YETRS89A are
// projected planar coordinates; lon/lat are derived lazily from them. Zone
// and PolygonCode membership is computed upstream and consumed as-is.
type Ubication struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Street      string `gorm:"size:256"`
	Number      string `gorm:"size:32"`
	DistrictID  *uint  `gorm:"index"`
	XETRS89A    *float64
	YETRS89A    *float64
	Longitude   *float64
	Latitude    *float64
	Zone        string `gorm:"size:32"`
	PolygonCode string `gorm:"size:32"`
	CreatedAt   time.Time

	District *District `gorm:"foreignKey:DistrictID"`
}

// RecordCard is a citizen-submitted incident/service record. Records are
// never physically deleted; Enabled marks them soft-disabled.
type RecordCard struct {
	ID                   string `gorm:"primaryKey;size:36"`
	NormalizedRecordID   string `gorm:"size:32;uniqueIndex;not null"`
	Description          string `gorm:"type:text"`
	ElementDetailID      uint   `gorm:"not null;index"`
	UbicationID          *uint  `gorm:"index"`
	RecordState          int    `gorm:"not null;default:0;index"`
	ResponsibleProfileID *uint  `gorm:"index"`
	ApplicantID          *uint
	ResponseChannel      string `gorm:"size:16;default:email"`
	InputChannel         string `gorm:"size:32"`
	ApplicantType        string `gorm:"size:32"`
	Support              string `gorm:"size:32"`
	Reasigned            bool   `gorm:"default:false"`
	AllowMultiderivation bool   `gorm:"default:false"`
	UserDisplayed        bool   `gorm:"default:false"`
	ClaimedFromID        *string `gorm:"size:36;index"`
	ClaimsNumber         int     `gorm:"default:0"`
	Alarm                bool    `gorm:"default:false;index"`
	CitizenAlarm         bool    `gorm:"default:false"`
	CitizenWebAlarm      bool    `gorm:"default:false"`
	AnsLimitDate         *time.Time `gorm:"index"`
	AnsLimitNearexpire   *time.Time
	ClosingDate          *time.Time
	CloseDepartment      string `gorm:"size:128"`
	Enabled              bool   `gorm:"default:true;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	ElementDetail      ElementDetail `gorm:"foreignKey:ElementDetailID"`
	Ubication          *Ubication    `gorm:"foreignKey:UbicationID"`
	ResponsibleProfile *Group        `gorm:"foreignKey:ResponsibleProfileID"`
	ClaimedFrom        *RecordCard   `gorm:"foreignKey:ClaimedFromID"`
}

// BeforeCreate assigns a UUID primary key when none is set.
func (r *RecordCard) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// PossibleSimilarRecord links two records flagged as possible duplicates.
// Rows are written in both directions so the relation stays symmetric.
type PossibleSimilarRecord struct {
	RecordCardID string `gorm:"primaryKey;size:36"`
	SimilarID    string `gorm:"primaryKey;size:36"`
	CreatedAt    time.Time
}

// Comment is a free-text or system comment attached to a record.
type Comment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RecordCardID string `gorm:"size:36;not null;index"`
	UserID       string `gorm:"size:64"`
	Reason       int
	Text         string `gorm:"type:text;not null"`
	CreatedAt    time.Time
}

// Conversation is a discussion thread attached to a record. Open
// conversations are closed in bulk when the record changes owner.
type Conversation struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RecordCardID string `gorm:"size:36;not null;index"`
	GroupID      *uint
	IsOpened     bool `gorm:"default:true;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attachment is the metadata row for a file attached to a record. The file
// itself lives in external storage; StorageRef points at it.
type Attachment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RecordCardID string `gorm:"size:36;not null;index"`
	Filename     string `gorm:"size:256;not null"`
	StorageRef   string `gorm:"size:512"`
	CreatedAt    time.Time
}

// RecordCardAudit keeps one last-writer per lifecycle milestone for a record,
// so closing a record never needs a history scan.
type RecordCardAudit struct {
	RecordCardID   string `gorm:"primaryKey;size:36"`
	ValidationUser string `gorm:"size:64"`
	PlanningUser   string `gorm:"size:64"`
	ResolutionUser string `gorm:"size:64"`
	CloseUser      string `gorm:"size:64"`
	UpdatedAt      time.Time
}
