package derivation

import (
	"fmt"
	"log"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// AllocationNotifier receives fire-and-forget allocation signals after a
// rule-driven reassignment. Failures are logged, never propagated.
type AllocationNotifier interface {
	NotifyAllocation(groupID uint, recordID string) error
}

// Options controls a Derivate call.
type Options struct {
	// CheckOnly computes the result without persisting anything.
	CheckOnly bool
	// TargetState overrides the record's current state, used when a state
	// change needs the new owner resolved before committing.
	TargetState *int
	// Notifier, when set, is captured in the Result after a persisted
	// reassignment. The caller signals it with Result.Notify once the
	// enclosing transaction has committed.
	Notifier AllocationNotifier
}

// Result reports what Derivate decided.
type Result struct {
	// Found is true when a derivation rule matched.
	Found bool
	// GroupID is the matched group when Found.
	GroupID uint
	// Changed is true when the matched group differs from the current
	// responsible group.
	Changed bool
	// Applied is true when the reassignment was persisted.
	Applied bool
	// Sticky is true when a manual reassignment blocked derivation.
	Sticky bool

	notifier      AllocationNotifier
	pendingGroup  uint
	pendingRecord string
}

// Notify signals the allocation to the notifier captured during Derivate.
// The caller invokes it after the enclosing transaction has committed, so a
// rolled-back reassignment is never announced. Failures are logged, never
// propagated, and repeated calls signal only once.
func (r *Result) Notify() {
	if r == nil || r.notifier == nil {
		return
	}
	n := r.notifier
	r.notifier = nil
	if err := n.NotifyAllocation(r.pendingGroup, r.pendingRecord); err != nil {
		log.Printf("derivation: allocation notify for %s failed: %v", r.pendingRecord, err)
	}
}

// Derivate resolves the responsible group for a record and applies the
// reassignment unless blocked or running in check-only mode.
//
// A record that has been manually reassigned keeps its owner unless
// multiderivation is allowed on the record or on its theme. A routing miss
// leaves the current (possibly absent) responsible group untouched and is
// reported, not treated as an error.
func Derivate(db *gorm.DB, record *models.RecordCard, userID string, opts Options) (*Result, error) {
	if db == nil {
		return nil, fmt.Errorf("derivation: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("derivation: record is required")
	}

	var theme models.ElementDetail
	if err := db.First(&theme, record.ElementDetailID).Error; err != nil {
		return nil, fmt.Errorf("derivation: load theme %d: %w", record.ElementDetailID, err)
	}

	if record.Reasigned && !record.AllowMultiderivation && !theme.AllowMultiderivationOnReassignment {
		return &Result{Sticky: true}, nil
	}

	targetState := record.RecordState
	if opts.TargetState != nil {
		targetState = *opts.TargetState
	}

	var ub *models.Ubication
	if record.UbicationID != nil {
		ub = &models.Ubication{}
		if err := db.First(ub, *record.UbicationID).Error; err != nil {
			return nil, fmt.Errorf("derivation: load ubication %d: %w", *record.UbicationID, err)
		}
	}

	group, found, err := Resolve(db, theme.ID, targetState, ub)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Result{}, nil
	}

	res := &Result{Found: true, GroupID: group.ID}
	if record.ResponsibleProfileID != nil && *record.ResponsibleProfileID == group.ID {
		return res, nil
	}
	res.Changed = true

	if opts.CheckOnly {
		return res, nil
	}

	previous := record.ResponsibleProfileID
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RecordCard{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"responsible_profile_id": group.ID,
				"user_displayed":         false,
			}).Error; err != nil {
			return fmt.Errorf("derivation: reassign record %s: %w", record.ID, err)
		}

		reasignation := models.RecordCardReasignation{
			RecordCardID:  record.ID,
			PreviousGroup: previous,
			NextGroup:     group.ID,
			Reason:        models.ReasonDerivation,
			Comment:       fmt.Sprintf("Derivated to %s for state %s", group.Name, models.StateName(targetState)),
			UserID:        userID,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(&reasignation).Error; err != nil {
			return fmt.Errorf("derivation: write reasignation for %s: %w", record.ID, err)
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
	record.UserDisplayed = false
	res.Applied = true

	if opts.Notifier != nil {
		// db may be a transaction handle, so the write is not necessarily
		// committed yet. The signal is stashed for the caller's Notify.
		res.notifier = opts.Notifier
		res.pendingGroup = group.ID
		res.pendingRecord = record.ID
	}

	return res, nil
}
