// Package lifecycle advances records through their states, keeping the
// append-only audit trail and the per-milestone audit fields consistent.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/derivation"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrIllegalTransition is returned when the catalog does not allow the
	// requested transition.
	ErrIllegalTransition = errors.New("lifecycle: illegal state transition")
	// ErrTerminalState is returned for any transition attempt out of a
	// closed or cancelled record.
	ErrTerminalState = errors.New("lifecycle: record is in a terminal state")
)

// TransitionCatalog supplies the legal next states for a theme and current
// state. The legality table is maintained by the catalog administration
// collaborators; this engine only consumes it.
type TransitionCatalog interface {
	LegalNextStates(themeID uint, currentState int) []int
}

// StaticCatalog is a TransitionCatalog backed by a fixed table, used by the
// CLI and as the default when no catalog service is wired.
type StaticCatalog struct {
	Transitions map[int][]int
}

func (c StaticCatalog) LegalNextStates(_ uint, currentState int) []int {
	return c.Transitions[currentState]
}

// DefaultCatalog returns the stock transition table. Terminal states have no
// successors.
func DefaultCatalog() StaticCatalog {
	return StaticCatalog{Transitions: map[int][]int{
		models.StatePendingValidate: {
			models.StateInPlanning,
			models.StateInResolution,
			models.StateExternalProcessing,
			models.StateClosed,
			models.StateCancelled,
		},
		models.StateInPlanning: {
			models.StateInResolution,
			models.StateExternalProcessing,
			models.StateCancelled,
		},
		models.StateInResolution: {
			models.StatePendingAnswer,
			models.StateExternalProcessing,
			models.StateCancelled,
		},
		models.StatePendingAnswer: {
			models.StateClosed,
			models.StateCancelled,
		},
		models.StateExternalProcessing: {
			models.StateExternalReturned,
			models.StateClosed,
			models.StateCancelled,
		},
		models.StateExternalReturned: {
			models.StateInPlanning,
			models.StateInResolution,
			models.StateCancelled,
		},
	}}
}

// ChangeOpts holds the optional parameters of a state change.
type ChangeOpts struct {
	CloseDepartment   string
	Automatic         bool
	PerformDerivation bool
	Catalog           TransitionCatalog
	Notifier          derivation.AllocationNotifier

	// bypassCatalog skips the legality check. Only the no-channel autoclose
	// sets it: that close is forced from whatever state the record is in.
	bypassCatalog bool
}

// ChangeState moves a record to nextState after checking legality against
// the catalog. With PerformDerivation the resolver runs for the new state
// first, so the history row carries the new owner. Closed states also stamp
// the closing date, department, and the close milestone audit field.
func ChangeState(db *gorm.DB, record *models.RecordCard, nextState int, userID string, opts ChangeOpts) (*models.RecordCardStateHistory, error) {
	if db == nil {
		return nil, fmt.Errorf("lifecycle: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("lifecycle: record is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("lifecycle: catalog is required")
	}
	if models.IsClosedState(record.RecordState) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalState, models.StateName(record.RecordState))
	}
	if !opts.bypassCatalog && !legal(opts.Catalog, record.ElementDetailID, record.RecordState, nextState) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition,
			models.StateName(record.RecordState), models.StateName(nextState))
	}

	previous := record.RecordState
	now := time.Now()
	var history models.RecordCardStateHistory
	var derivated *derivation.Result

	err := db.Transaction(func(tx *gorm.DB) error {
		if opts.PerformDerivation {
			target := nextState
			res, err := derivation.Derivate(tx, record, userID, derivation.Options{
				TargetState: &target,
				Notifier:    opts.Notifier,
			})
			if err != nil {
				return err
			}
			derivated = res
		}

		updates := map[string]interface{}{"record_state": nextState}
		if models.IsClosedState(nextState) {
			updates["closing_date"] = now
			updates["close_department"] = opts.CloseDepartment
		}
		if err := tx.Model(&models.RecordCard{}).Where("id = ?", record.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("lifecycle: update record %s: %w", record.ID, err)
		}

		history = models.RecordCardStateHistory{
			RecordCardID:  record.ID,
			PreviousState: previous,
			NextState:     nextState,
			GroupID:       record.ResponsibleProfileID,
			UserID:        userID,
			Automatic:     opts.Automatic,
			CreatedAt:     now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("lifecycle: write state history for %s: %w", record.ID, err)
		}

		for _, field := range auditFields(previous, nextState) {
			if err := registerAuditField(tx, record.ID, field, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Announce the allocation only once the whole transition is committed.
	derivated.Notify()

	record.RecordState = nextState
	if models.IsClosedState(nextState) {
		record.ClosingDate = &now
		record.CloseDepartment = opts.CloseDepartment
	}
	return &history, nil
}

// PendingAnswerChangeState moves a record into the pending-answer step. When
// the citizen has no reachable response channel the record is closed directly
// and automatically, with a system comment. Returns the history row and
// whether the record was auto-closed.
func PendingAnswerChangeState(db *gorm.DB, record *models.RecordCard, userID string, opts ChangeOpts) (*models.RecordCardStateHistory, bool, error) {
	if record == nil {
		return nil, false, fmt.Errorf("lifecycle: record is required")
	}

	if record.ResponseChannel != models.ChannelNone {
		history, err := ChangeState(db, record, models.StatePendingAnswer, userID, opts)
		return history, false, err
	}

	var history *models.RecordCardStateHistory
	err := db.Transaction(func(tx *gorm.DB) error {
		closeOpts := opts
		closeOpts.Automatic = true
		closeOpts.bypassCatalog = true
		// No allocation announcements for a record that is being closed.
		closeOpts.Notifier = nil
		h, err := ChangeState(tx, record, models.StateClosed, userID, closeOpts)
		if err != nil {
			return err
		}
		history = h

		comment := models.Comment{
			RecordCardID: record.ID,
			UserID:       userID,
			Reason:       models.CommentReasonAutoClose,
			Text:         "Record automatically closed: no response channel",
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(&comment).Error; err != nil {
			return fmt.Errorf("lifecycle: write autoclose comment for %s: %w", record.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return history, true, nil
}

func legal(catalog TransitionCatalog, themeID uint, current, next int) bool {
	for _, s := range catalog.LegalNextStates(themeID, current) {
		if s == next {
			return true
		}
	}
	return false
}

// Audit field column names on RecordCardAudit.
const (
	auditFieldValidation = "validation_user"
	auditFieldPlanning   = "planning_user"
	auditFieldResolution = "resolution_user"
	auditFieldClose      = "close_user"
)

// auditFields maps a transition to the milestone columns it stamps. Leaving
// pending-validate records the validating user; entering planning,
// resolution, or a closed state records that milestone's user.
func auditFields(previous, next int) []string {
	var fields []string
	if previous == models.StatePendingValidate && next != models.StateCancelled {
		fields = append(fields, auditFieldValidation)
	}
	switch {
	case next == models.StateInPlanning:
		fields = append(fields, auditFieldPlanning)
	case next == models.StateInResolution:
		fields = append(fields, auditFieldResolution)
	case models.IsClosedState(next):
		fields = append(fields, auditFieldClose)
	}
	return fields
}

// registerAuditField upserts the record's audit row and stamps one milestone
// column with the acting user.
func registerAuditField(tx *gorm.DB, recordID, field, userID string) error {
	audit := models.RecordCardAudit{RecordCardID: recordID}
	if err := tx.Where("record_card_id = ?", recordID).FirstOrCreate(&audit).Error; err != nil {
		return fmt.Errorf("lifecycle: load audit row for %s: %w", recordID, err)
	}
	if err := tx.Model(&models.RecordCardAudit{}).
		Where("record_card_id = ?", recordID).
		Update(field, userID).Error; err != nil {
		return fmt.Errorf("lifecycle: stamp %s for %s: %w", field, recordID, err)
	}
	return nil
}
