package dashboard

import (
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// StateCount holds the record count for one lifecycle state.
type StateCount struct {
	State int    `json:"state"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StateSummary returns per-state counts over enabled records. States with no
// records are included with a zero count.
func StateSummary(db *gorm.DB) ([]StateCount, error) {
	type row struct {
		RecordState int
		Count       int
	}
	var rows []row
	err := db.Model(&models.RecordCard{}).
		Select("record_state, count(*) as count").
		Where("enabled = ?", true).
		Group("record_state").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int, len(rows))
	for _, r := range rows {
		counts[r.RecordState] = r.Count
	}

	states := append(models.OpenStates(), models.ClosedStates()...)
	result := make([]StateCount, 0, len(states))
	for _, s := range states {
		result = append(result, StateCount{
			State: s,
			Name:  models.StateName(s),
			Count: counts[s],
		})
	}
	return result, nil
}

// RecordRow holds record data for display.
type RecordRow struct {
	ID                   string     `json:"id"`
	NormalizedRecordID   string     `json:"normalized_record_id"`
	State                int        `json:"state"`
	StateName            string     `json:"state_name"`
	ResponsibleProfileID *uint      `json:"responsible_profile_id,omitempty"`
	ClaimsNumber         int        `json:"claims_number"`
	Alarm                bool       `json:"alarm"`
	AnsLimitDate         *time.Time `json:"ans_limit_date,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toRows(records []models.RecordCard) []RecordRow {
	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = RecordRow{
			ID:                   r.ID,
			NormalizedRecordID:   r.NormalizedRecordID,
			State:                r.RecordState,
			StateName:            models.StateName(r.RecordState),
			ResponsibleProfileID: r.ResponsibleProfileID,
			ClaimsNumber:         r.ClaimsNumber,
			Alarm:                r.Alarm,
			AnsLimitDate:         r.AnsLimitDate,
			CreatedAt:            r.CreatedAt,
		}
	}
	return rows
}

// UnassignedRecords returns open records with no responsible group, oldest
// first.
func UnassignedRecords(db *gorm.DB) ([]RecordRow, error) {
	var records []models.RecordCard
	err := db.Where("enabled = ? AND responsible_profile_id IS NULL AND record_state IN ?",
		true, models.OpenStates()).
		Order("created_at ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toRows(records), nil
}

// DeadlineBuckets splits open records by how close they are to their answer
// deadline.
type DeadlineBuckets struct {
	NearExpire []RecordRow `json:"near_expire"`
	Expired    []RecordRow `json:"expired"`
}

// DeadlineSummary returns open records near or past their answer deadline.
func DeadlineSummary(db *gorm.DB, now time.Time) (*DeadlineBuckets, error) {
	var near []models.RecordCard
	err := db.Where("enabled = ? AND record_state IN ? AND ans_limit_nearexpire <= ? AND ans_limit_date > ?",
		true, models.OpenStates(), now, now).
		Order("ans_limit_date ASC").Find(&near).Error
	if err != nil {
		return nil, err
	}

	var expired []models.RecordCard
	err = db.Where("enabled = ? AND record_state IN ? AND ans_limit_date <= ?",
		true, models.OpenStates(), now).
		Order("ans_limit_date ASC").Find(&expired).Error
	if err != nil {
		return nil, err
	}

	return &DeadlineBuckets{NearExpire: toRows(near), Expired: toRows(expired)}, nil
}

// AlarmedRecords returns enabled records with any raised alarm.
func AlarmedRecords(db *gorm.DB) ([]RecordRow, error) {
	var records []models.RecordCard
	err := db.Where("enabled = ? AND (alarm = ? OR citizen_alarm = ? OR citizen_web_alarm = ?)",
		true, true, true, true).
		Order("created_at ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toRows(records), nil
}

// ClaimHeavyChains returns chain roots whose claim count meets the threshold,
// most-claimed first.
func ClaimHeavyChains(db *gorm.DB, threshold int) ([]RecordRow, error) {
	if threshold <= 0 {
		threshold = 3
	}
	var records []models.RecordCard
	err := db.Where("enabled = ? AND claimed_from_id IS NULL AND claims_number >= ?",
		true, threshold).
		Order("claims_number DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toRows(records), nil
}
