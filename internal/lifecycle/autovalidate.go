package lifecycle

import (
	"fmt"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// ExternalValidator is the capability consulted before autovalidating a
// record. Rejection is non-fatal: the record keeps its state and the message
// is attached as an observation.
type ExternalValidator interface {
	Validate(record *models.RecordCard) (accepted bool, message string)
}

// AutovalidateOpts holds the collaborators for an autovalidation attempt.
type AutovalidateOpts struct {
	// Validator is optional; when nil the record closes without external
	// confirmation.
	Validator ExternalValidator
	Catalog   TransitionCatalog
}

// AutovalidateResult reports the outcome of AutovalidateRecord.
type AutovalidateResult struct {
	Validated bool
	Message   string
}

// RecordCanBeAutovalidated reports whether a record qualifies for
// autovalidation: the theme enables it, the record still awaits validation,
// and it has an applicant.
func RecordCanBeAutovalidated(record *models.RecordCard, theme *models.ElementDetail) bool {
	if record == nil || theme == nil {
		return false
	}
	if !theme.Autovalidation {
		return false
	}
	if record.RecordState != models.StatePendingValidate {
		return false
	}
	return record.ApplicantID != nil
}

// AutovalidateRecord validates and closes a record in one step. When an
// external validator is configured it is consulted first; a rejection
// attaches an observation comment, leaves the state untouched, and is
// reported in the result rather than as an error.
func AutovalidateRecord(db *gorm.DB, record *models.RecordCard, comment, userID string, opts AutovalidateOpts) (*AutovalidateResult, error) {
	if db == nil {
		return nil, fmt.Errorf("lifecycle: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("lifecycle: record is required")
	}

	var theme models.ElementDetail
	if err := db.First(&theme, record.ElementDetailID).Error; err != nil {
		return nil, fmt.Errorf("lifecycle: load theme %d: %w", record.ElementDetailID, err)
	}
	if !RecordCanBeAutovalidated(record, &theme) {
		return nil, fmt.Errorf("lifecycle: record %s cannot be autovalidated", record.NormalizedRecordID)
	}

	if opts.Validator != nil {
		accepted, message := opts.Validator.Validate(record)
		if !accepted {
			observation := models.Comment{
				RecordCardID: record.ID,
				UserID:       userID,
				Reason:       models.CommentReasonValidationReject,
				Text:         message,
				CreatedAt:    time.Now(),
			}
			if err := db.Create(&observation).Error; err != nil {
				return nil, fmt.Errorf("lifecycle: write rejection comment for %s: %w", record.ID, err)
			}
			return &AutovalidateResult{Validated: false, Message: message}, nil
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		closeOpts := ChangeOpts{Automatic: true, Catalog: opts.Catalog}
		if _, err := ChangeState(tx, record, models.StateClosed, userID, closeOpts); err != nil {
			return err
		}
		if comment != "" {
			c := models.Comment{
				RecordCardID: record.ID,
				UserID:       userID,
				Reason:       models.CommentReasonValidation,
				Text:         comment,
				CreatedAt:    time.Now(),
			}
			if err := tx.Create(&c).Error; err != nil {
				return fmt.Errorf("lifecycle: write validation comment for %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AutovalidateResult{Validated: true}, nil
}
