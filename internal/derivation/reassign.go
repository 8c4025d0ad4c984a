package derivation

import (
	"errors"
	"fmt"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// ErrNotReassignable is returned when the record's state or its theme's
// policy forbids a manual reassignment.
var ErrNotReassignable = errors.New("derivation: record is not reassignable")

// Reassign hands a record to another group by coordinator decision. Closed
// records are never reassignable, and once a record has left the
// pending-validate step its theme must allow post-validation reassignment.
// The move marks the record as manually reassigned, which makes later
// derivation sticky, and leaves a reasignation audit row plus a comment
// carrying the coordinator's rationale.
func Reassign(db *gorm.DB, record *models.RecordCard, groupID uint, userID, comment string) (*models.RecordCardReasignation, error) {
	if db == nil {
		return nil, fmt.Errorf("derivation: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("derivation: record is required")
	}
	if comment == "" {
		return nil, fmt.Errorf("derivation: reassignment comment is required")
	}
	if models.IsClosedState(record.RecordState) {
		return nil, fmt.Errorf("%w: record %s is %s", ErrNotReassignable,
			record.NormalizedRecordID, models.StateName(record.RecordState))
	}

	var theme models.ElementDetail
	if err := db.First(&theme, record.ElementDetailID).Error; err != nil {
		return nil, fmt.Errorf("derivation: load theme %d: %w", record.ElementDetailID, err)
	}
	if record.RecordState != models.StatePendingValidate && !theme.ValidatedReassignable {
		return nil, fmt.Errorf("%w: theme %q forbids reassignment after validation",
			ErrNotReassignable, theme.Description)
	}

	var group models.Group
	err := db.Where("id = ? AND enabled = ?", groupID, true).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("derivation: group %d not found or disabled", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("derivation: load group %d: %w", groupID, err)
	}
	if record.ResponsibleProfileID != nil && *record.ResponsibleProfileID == group.ID {
		return nil, fmt.Errorf("derivation: group %d is already responsible for %s",
			group.ID, record.NormalizedRecordID)
	}

	previous := record.ResponsibleProfileID
	now := time.Now()
	reasignation := models.RecordCardReasignation{
		RecordCardID:  record.ID,
		PreviousGroup: previous,
		NextGroup:     group.ID,
		Reason:        models.ReasonCoordinator,
		Comment:       comment,
		UserID:        userID,
		CreatedAt:     now,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RecordCard{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"responsible_profile_id": group.ID,
				"reasigned":              true,
				"user_displayed":         false,
			}).Error; err != nil {
			return fmt.Errorf("derivation: reassign record %s: %w", record.ID, err)
		}

		if err := tx.Create(&reasignation).Error; err != nil {
			return fmt.Errorf("derivation: write reasignation for %s: %w", record.ID, err)
		}

		note := models.Comment{
			RecordCardID: record.ID,
			UserID:       userID,
			Reason:       models.CommentReasonReassignment,
			Text:         comment,
			CreatedAt:    now,
		}
		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("derivation: write reassignment comment for %s: %w", record.ID, err)
		}

		// The new owner reopens conversations when it acts.
		if err := tx.Model(&models.Conversation{}).
			Where("record_card_id = ? AND is_opened = ?", record.ID, true).
			Update("is_opened", false).Error; err != nil {
			return fmt.Errorf("derivation: close conversations for %s: %w", record.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gid := group.ID
	record.ResponsibleProfileID = &gid
	record.Reasigned = true
	record.UserDisplayed = false
	return &reasignation, nil
}
