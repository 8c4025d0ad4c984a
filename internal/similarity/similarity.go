// Package similarity flags records that likely describe the same real-world
// issue, using per-theme temporal and geographic thresholds plus an
// ambit-visibility gate.
package similarity

import (
	"fmt"
	"math"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/groups"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckSimilarity decides whether candidate should be flagged as a possible
// duplicate of record. All checks must pass:
//
//   - same theme
//   - candidate not in a terminal state
//   - creation times within the theme's similarity window (skipped when the
//     theme defines none)
//   - planar distance strictly under the theme's meter threshold; a missing
//     coordinate on either side always fails the pair
//   - candidates owned outside the record's ambit are visible only to
//     groups holding the out-of-ambit validation permission
func CheckSimilarity(db *gorm.DB, record, candidate *models.RecordCard, actingGroupID uint, checker groups.Checker) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("similarity: db is required")
	}
	if record == nil || candidate == nil {
		return false, fmt.Errorf("similarity: both records are required")
	}

	if candidate.ElementDetailID != record.ElementDetailID {
		return false, nil
	}
	if models.IsClosedState(candidate.RecordState) {
		return false, nil
	}

	var theme models.ElementDetail
	if err := db.First(&theme, record.ElementDetailID).Error; err != nil {
		return false, fmt.Errorf("similarity: load theme %d: %w", record.ElementDetailID, err)
	}

	if theme.SimilarityHours != nil {
		window := time.Duration(*theme.SimilarityHours) * time.Hour
		diff := candidate.CreatedAt.Sub(record.CreatedAt)
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			return false, nil
		}
	}

	if theme.SimilarityMeters != nil {
		within, err := withinDistance(db, record, candidate, *theme.SimilarityMeters)
		if err != nil {
			return false, err
		}
		if !within {
			return false, nil
		}
	}

	return ambitVisible(db, record, candidate, actingGroupID, checker)
}

// withinDistance reports whether both records carry planar coordinates and
// sit strictly closer than meters apart. Any missing coordinate counts as
// exceeding the distance.
func withinDistance(db *gorm.DB, a, b *models.RecordCard, meters int) (bool, error) {
	ubA, err := loadUbication(db, a)
	if err != nil {
		return false, err
	}
	ubB, err := loadUbication(db, b)
	if err != nil {
		return false, err
	}
	if ubA == nil || ubB == nil {
		return false, nil
	}
	if ubA.XETRS89A == nil || ubA.YETRS89A == nil || ubB.XETRS89A == nil || ubB.YETRS89A == nil {
		return false, nil
	}

	dx := *ubA.XETRS89A - *ubB.XETRS89A
	dy := *ubA.YETRS89A - *ubB.YETRS89A
	return math.Sqrt(dx*dx+dy*dy) < float64(meters), nil
}

func loadUbication(db *gorm.DB, record *models.RecordCard) (*models.Ubication, error) {
	if record.Ubication != nil {
		return record.Ubication, nil
	}
	if record.UbicationID == nil {
		return nil, nil
	}
	var ub models.Ubication
	if err := db.First(&ub, *record.UbicationID).Error; err != nil {
		return nil, fmt.Errorf("similarity: load ubication %d: %w", *record.UbicationID, err)
	}
	return &ub, nil
}

// ambitVisible applies the cross-team visibility gate. When either record has
// no responsible group its ambit is unknown, which counts as out of ambit: the
// pair is hidden unless the acting group holds the out-of-ambit permission.
func ambitVisible(db *gorm.DB, record, candidate *models.RecordCard, actingGroupID uint, checker groups.Checker) (bool, error) {
	if record.ResponsibleProfileID == nil || candidate.ResponsibleProfileID == nil {
		if checker != nil && checker.HasPermission(actingGroupID, groups.PermOutAmbitValidation) {
			return true, nil
		}
		return false, nil
	}
	groupA, err := groups.Get(db, *record.ResponsibleProfileID)
	if err != nil {
		return false, err
	}
	groupB, err := groups.Get(db, *candidate.ResponsibleProfileID)
	if err != nil {
		return false, err
	}
	same, err := groups.SameAmbit(db, groupA, groupB)
	if err != nil {
		return false, err
	}
	if same {
		return true, nil
	}
	if checker != nil && checker.HasPermission(actingGroupID, groups.PermOutAmbitValidation) {
		return true, nil
	}
	return false, nil
}

// GetPossibleSimilarRecords scans open records sharing the theme and returns
// those passing the similarity filters for the acting group.
func GetPossibleSimilarRecords(db *gorm.DB, record *models.RecordCard, actingGroupID uint, checker groups.Checker) ([]models.RecordCard, error) {
	if db == nil {
		return nil, fmt.Errorf("similarity: db is required")
	}
	if record == nil {
		return nil, fmt.Errorf("similarity: record is required")
	}

	var candidates []models.RecordCard
	if err := db.Where("element_detail_id = ? AND id != ? AND record_state IN ? AND enabled = ?",
		record.ElementDetailID, record.ID, models.OpenStates(), true).
		Order("created_at ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("similarity: scan candidates for %s: %w", record.ID, err)
	}

	var matches []models.RecordCard
	for i := range candidates {
		ok, err := CheckSimilarity(db, record, &candidates[i], actingGroupID, checker)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, candidates[i])
		}
	}
	return matches, nil
}

// SetSimilarRecords computes the similar set and persists it symmetrically:
// join rows in both directions and the alarm flag on every record involved,
// the initiating one included, in a single transaction.
func SetSimilarRecords(db *gorm.DB, record *models.RecordCard, actingGroupID uint, checker groups.Checker) ([]models.RecordCard, error) {
	matches, err := GetPossibleSimilarRecords(db, record, actingGroupID, checker)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		ids := []string{record.ID}
		for _, m := range matches {
			ids = append(ids, m.ID)
			links := []models.PossibleSimilarRecord{
				{RecordCardID: record.ID, SimilarID: m.ID, CreatedAt: now},
				{RecordCardID: m.ID, SimilarID: record.ID, CreatedAt: now},
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&links).Error; err != nil {
				return fmt.Errorf("similarity: link %s and %s: %w", record.ID, m.ID, err)
			}
		}
		if err := tx.Model(&models.RecordCard{}).Where("id IN ?", ids).
			Update("alarm", true).Error; err != nil {
			return fmt.Errorf("similarity: raise alarms: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record.Alarm = true
	return matches, nil
}
