// Package claims creates and numbers the claim chain: the sequence of
// records a citizen files to contest or reopen a previous one.
package claims

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEmptyDescription is returned when a claim has no description. It is the
// only hard precondition: claims can be filed against open or closed records.
var ErrEmptyDescription = errors.New("claims: description is required")

// AllocationNotifier receives a fire-and-forget signal after a claim is
// created.
type AllocationNotifier interface {
	NotifyAllocation(groupID uint, recordID string) error
}

// FileCopier copies a record's attachments to the claim's destination group.
// Fire-and-forget: failures never roll back the claim.
type FileCopier interface {
	CopyFiles(destinationGroup uint, sourceRecordID string) error
}

// Options controls CreateRecordClaim.
type Options struct {
	IsWebClaim         bool
	SetToInternalClaim bool
	SetAlarms          bool

	// Catalog values applied when SetToInternalClaim is true.
	InternalInputChannel  string
	InternalApplicantType string
	InternalSupport       string

	Notifier   AllocationNotifier
	FileCopier FileCopier
}

// CreateRecordClaim creates a new record as a claim against original. The
// claim copies the original's applicant and response configuration, points
// claimed_from at the original, and takes the next zero-padded chain suffix.
// Creation locks the chain root row, so concurrent claims on one chain
// serialize and can never compute the same suffix.
func CreateRecordClaim(db *gorm.DB, original *models.RecordCard, userID, description string, opts Options) (*models.RecordCard, error) {
	if db == nil {
		return nil, fmt.Errorf("claims: db is required")
	}
	if original == nil {
		return nil, fmt.Errorf("claims: original record is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyDescription
	}

	var claim *models.RecordCard
	err := db.Transaction(func(tx *gorm.DB) error {
		root, err := lockedChainRoot(tx, original)
		if err != nil {
			return err
		}
		members, err := chainFrom(tx, root)
		if err != nil {
			return err
		}

		position := len(members) + 1
		claim = &models.RecordCard{
			NormalizedRecordID:   fmt.Sprintf("%s-%02d", root.NormalizedRecordID, position),
			Description:          description,
			ElementDetailID:      original.ElementDetailID,
			UbicationID:          original.UbicationID,
			RecordState:          models.StatePendingValidate,
			ResponsibleProfileID: original.ResponsibleProfileID,
			ApplicantID:          original.ApplicantID,
			ResponseChannel:      original.ResponseChannel,
			InputChannel:         original.InputChannel,
			ApplicantType:        original.ApplicantType,
			Support:              original.Support,
			ClaimedFromID:        &original.ID,
			Enabled:              true,
		}
		if opts.SetToInternalClaim {
			claim.InputChannel = opts.InternalInputChannel
			claim.ApplicantType = opts.InternalApplicantType
			claim.Support = opts.InternalSupport
		}
		if err := tx.Create(claim).Error; err != nil {
			return fmt.Errorf("claims: create claim for %s: %w", original.NormalizedRecordID, err)
		}

		comment := models.Comment{
			RecordCardID: claim.ID,
			UserID:       userID,
			Reason:       models.CommentReasonClaim,
			Text:         description,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(&comment).Error; err != nil {
			return fmt.Errorf("claims: write claim comment: %w", err)
		}

		if opts.SetAlarms {
			claimUpdates := map[string]interface{}{
				"alarm":         true,
				"citizen_alarm": true,
			}
			if opts.IsWebClaim {
				claimUpdates["citizen_web_alarm"] = true
			}
			if err := tx.Model(&models.RecordCard{}).Where("id = ?", claim.ID).
				Updates(claimUpdates).Error; err != nil {
				return fmt.Errorf("claims: raise claim alarms: %w", err)
			}
			if err := tx.Model(&models.RecordCard{}).Where("id = ?", original.ID).
				Updates(map[string]interface{}{"alarm": true, "citizen_alarm": true}).Error; err != nil {
				return fmt.Errorf("claims: raise original alarms: %w", err)
			}
			claim.Alarm = true
			claim.CitizenAlarm = true
			claim.CitizenWebAlarm = opts.IsWebClaim
			original.Alarm = true
			original.CitizenAlarm = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Both signals are fire-and-forget: the claim is already committed.
	if opts.Notifier != nil && claim.ResponsibleProfileID != nil {
		go func(n AllocationNotifier, groupID uint, recordID string) {
			if err := n.NotifyAllocation(groupID, recordID); err != nil {
				log.Printf("claims: allocation notify for %s failed: %v", recordID, err)
			}
		}(opts.Notifier, *claim.ResponsibleProfileID, claim.ID)
	}
	if opts.FileCopier != nil && claim.ResponsibleProfileID != nil {
		var attachments int64
		if err := db.Model(&models.Attachment{}).
			Where("record_card_id = ?", original.ID).Count(&attachments).Error; err == nil && attachments > 0 {
			go func(c FileCopier, groupID uint, recordID string) {
				if err := c.CopyFiles(groupID, recordID); err != nil {
					log.Printf("claims: file copy for %s failed: %v", recordID, err)
				}
			}(opts.FileCopier, *claim.ResponsibleProfileID, original.ID)
		}
	}

	return claim, nil
}

// UpdateClaimsNumber recomputes claims_number across the whole chain as the
// chain's member count. Callers invoke it explicitly after creation; batch
// claim creation may add several links before a recount is needed.
func UpdateClaimsNumber(db *gorm.DB, record *models.RecordCard) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("claims: db is required")
	}
	if record == nil {
		return 0, fmt.Errorf("claims: record is required")
	}

	var count int
	err := db.Transaction(func(tx *gorm.DB) error {
		root, err := lockedChainRoot(tx, record)
		if err != nil {
			return err
		}
		members, err := chainFrom(tx, root)
		if err != nil {
			return err
		}
		count = len(members)

		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		if err := tx.Model(&models.RecordCard{}).Where("id IN ?", ids).
			Update("claims_number", count).Error; err != nil {
			return fmt.Errorf("claims: update claims_number: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	record.ClaimsNumber = count
	return count, nil
}

// GetLastClaim returns the chain member with the highest claim suffix: the
// record a new claim, comment, or correspondence should attach to.
func GetLastClaim(db *gorm.DB, record *models.RecordCard) (*models.RecordCard, error) {
	members, err := Chain(db, record)
	if err != nil {
		return nil, err
	}
	return &members[len(members)-1], nil
}

// Chain returns every record in the claim chain containing record, ordered
// by chain position (root first).
func Chain(db *gorm.DB, record *models.RecordCard) ([]models.RecordCard, error) {
	if db == nil {
		return nil, fmt.Errorf("claims: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("claims: record is required")
	}
	root, err := chainRoot(db, record)
	if err != nil {
		return nil, err
	}
	return chainFrom(db, root)
}

// Position returns a record's 1-based position in its chain, parsed from
// the claim suffix. The root is position 1.
func Position(record *models.RecordCard) int {
	idx := strings.LastIndex(record.NormalizedRecordID, "-")
	if idx < 0 {
		return 1
	}
	n, err := strconv.Atoi(record.NormalizedRecordID[idx+1:])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// chainRoot walks claimed_from links back to the chain root.
func chainRoot(db *gorm.DB, record *models.RecordCard) (*models.RecordCard, error) {
	current := record
	for current.ClaimedFromID != nil {
		var prev models.RecordCard
		if err := db.First(&prev, "id = ?", *current.ClaimedFromID).Error; err != nil {
			return nil, fmt.Errorf("claims: walk chain from %s: %w", record.ID, err)
		}
		current = &prev
	}
	return current, nil
}

// lockedChainRoot resolves the root and re-reads it under a row lock, which
// serializes chain mutations across concurrent transactions.
func lockedChainRoot(tx *gorm.DB, record *models.RecordCard) (*models.RecordCard, error) {
	root, err := chainRoot(tx, record)
	if err != nil {
		return nil, err
	}
	var locked models.RecordCard
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&locked, "id = ?", root.ID).Error; err != nil {
		return nil, fmt.Errorf("claims: lock chain root %s: %w", root.ID, err)
	}
	return &locked, nil
}

// chainFrom collects the chain by following claimed_from links forward from
// the root, then orders members by position.
func chainFrom(db *gorm.DB, root *models.RecordCard) ([]models.RecordCard, error) {
	members := []models.RecordCard{*root}
	frontier := []string{root.ID}
	seen := map[string]bool{root.ID: true}

	for len(frontier) > 0 {
		var next []models.RecordCard
		if err := db.Where("claimed_from_id IN ?", frontier).Find(&next).Error; err != nil {
			return nil, fmt.Errorf("claims: collect chain of %s: %w", root.ID, err)
		}
		frontier = frontier[:0]
		for _, m := range next {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			members = append(members, m)
			frontier = append(frontier, m.ID)
		}
	}

	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && Position(&members[j]) < Position(&members[j-1]); j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
	return members, nil
}
