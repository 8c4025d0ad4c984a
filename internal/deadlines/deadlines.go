// Package deadlines computes SLA answer deadlines and staleness thresholds
// for record cards.
package deadlines

import (
	"errors"
	"fmt"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

const (
	// DefaultSLADays is the answer window applied when a theme defines no
	// sla_hours of its own.
	DefaultSLADays = 30

	// DefaultNearExpireRatio is the share of the answer window that must
	// elapse before a record counts as near expiry.
	DefaultNearExpireRatio = 0.8

	// DefaultClaimsThreshold is the claim count above which only ambit
	// coordinators may answer.
	DefaultClaimsThreshold = 3

	// DefaultStaleDays is the age in ambit above which only ambit
	// coordinators may answer.
	DefaultStaleDays = 60
)

// Options tunes deadline computation. Zero values fall back to the package
// defaults, so the zero Options is usable.
type Options struct {
	DefaultSLADays  int
	NearExpireRatio float64
	ClaimsThreshold int
	StaleDays       int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) slaDays() int {
	if o.DefaultSLADays > 0 {
		return o.DefaultSLADays
	}
	return DefaultSLADays
}

func (o Options) nearExpireRatio() float64 {
	if o.NearExpireRatio > 0 && o.NearExpireRatio < 1 {
		return o.NearExpireRatio
	}
	return DefaultNearExpireRatio
}

func (o Options) claimsThreshold() int {
	if o.ClaimsThreshold > 0 {
		return o.ClaimsThreshold
	}
	return DefaultClaimsThreshold
}

func (o Options) staleDays() int {
	if o.StaleDays > 0 {
		return o.StaleDays
	}
	return DefaultStaleDays
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// AnsLimitDate returns the SLA answer deadline for a record: created_at plus
// the theme's sla_hours, or the configured default window when the theme
// defines none.
func AnsLimitDate(db *gorm.DB, record *models.RecordCard, opts Options) (time.Time, error) {
	if db == nil {
		return time.Time{}, fmt.Errorf("deadlines: db is required")
	}
	if record == nil {
		return time.Time{}, fmt.Errorf("deadlines: record is required")
	}

	var theme models.ElementDetail
	if err := db.First(&theme, "id = ?", record.ElementDetailID).Error; err != nil {
		return time.Time{}, fmt.Errorf("deadlines: load theme %d: %w", record.ElementDetailID, err)
	}

	window := time.Duration(opts.slaDays()) * 24 * time.Hour
	if theme.SLAHours != nil && *theme.SLAHours > 0 {
		window = time.Duration(*theme.SLAHours) * time.Hour
	}
	return record.CreatedAt.Add(window), nil
}

// AnsLimitNearExpire returns the near-expiry mark for a record. It sits at a
// fixed fraction of the answer window and is always strictly earlier than
// AnsLimitDate.
func AnsLimitNearExpire(db *gorm.DB, record *models.RecordCard, opts Options) (time.Time, error) {
	limit, err := AnsLimitDate(db, record, opts)
	if err != nil {
		return time.Time{}, err
	}
	window := limit.Sub(record.CreatedAt)
	mark := record.CreatedAt.Add(time.Duration(float64(window) * opts.nearExpireRatio()))
	if !mark.Before(limit) {
		mark = limit.Add(-time.Minute)
	}
	return mark, nil
}

// SetAnsLimits computes and persists both deadline columns on the record.
func SetAnsLimits(db *gorm.DB, record *models.RecordCard, opts Options) error {
	limit, err := AnsLimitDate(db, record, opts)
	if err != nil {
		return err
	}
	near, err := AnsLimitNearExpire(db, record, opts)
	if err != nil {
		return err
	}

	err = db.Model(&models.RecordCard{}).Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"ans_limit_date":       limit,
			"ans_limit_nearexpire": near,
		}).Error
	if err != nil {
		return fmt.Errorf("deadlines: stamp limits on %s: %w", record.NormalizedRecordID, err)
	}
	record.AnsLimitDate = &limit
	record.AnsLimitNearexpire = &near
	return nil
}

// DaysInAmbit returns how many whole days the record has been with its
// current responsible ambit. With at least one reassignment on file it counts
// from the most recent one, otherwise from record creation.
func DaysInAmbit(db *gorm.DB, record *models.RecordCard, opts Options) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("deadlines: db is required")
	}
	if record == nil {
		return 0, fmt.Errorf("deadlines: record is required")
	}

	since := record.CreatedAt
	var last models.RecordCardReasignation
	err := db.Where("record_card_id = ?", record.ID).
		Order("created_at DESC").First(&last).Error
	switch {
	case err == nil:
		since = last.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No reassignments: count from creation.
	default:
		return 0, fmt.Errorf("deadlines: load reassignments for %s: %w", record.NormalizedRecordID, err)
	}

	days := int(opts.now().Sub(since).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}

// OnlyAnswerAmbitCoordinators reports whether the record may only be answered
// by ambit-coordinator groups, with a reason suitable for display. It is true
// when the claim count exceeds the configured threshold or when the record
// has sat in its ambit past the staleness threshold.
func OnlyAnswerAmbitCoordinators(db *gorm.DB, record *models.RecordCard, opts Options) (bool, string, error) {
	if record == nil {
		return false, "", fmt.Errorf("deadlines: record is required")
	}

	if record.ClaimsNumber > opts.claimsThreshold() {
		return true, fmt.Sprintf("record has %d claims (threshold %d)",
			record.ClaimsNumber, opts.claimsThreshold()), nil
	}

	days, err := DaysInAmbit(db, record, opts)
	if err != nil {
		return false, "", err
	}
	if days > opts.staleDays() {
		return true, fmt.Sprintf("record has been %d days in its ambit (threshold %d)",
			days, opts.staleDays()), nil
	}
	return false, "", nil
}
