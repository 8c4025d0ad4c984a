package lifecycle

import (
	"testing"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/groups"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
)

// stubValidator implements ExternalValidator with a canned answer.
type stubValidator struct {
	accepted bool
	message  string
}

func (s stubValidator) Validate(_ *models.RecordCard) (bool, string) {
	return s.accepted, s.message
}

func TestRecordCanBeAutovalidated(t *testing.T) {
	applicant := uint(7)
	theme := &models.ElementDetail{Autovalidation: true}
	rec := &models.RecordCard{
		RecordState: models.StatePendingValidate,
		ApplicantID: &applicant,
	}

	if !RecordCanBeAutovalidated(rec, theme) {
		t.Error("expected record to qualify")
	}

	noAuto := &models.ElementDetail{Autovalidation: false}
	if RecordCanBeAutovalidated(rec, noAuto) {
		t.Error("theme without autovalidation must not qualify")
	}

	wrongState := &models.RecordCard{
		RecordState: models.StateInResolution,
		ApplicantID: &applicant,
	}
	if RecordCanBeAutovalidated(wrongState, theme) {
		t.Error("non pending-validate record must not qualify")
	}

	noApplicant := &models.RecordCard{RecordState: models.StatePendingValidate}
	if RecordCanBeAutovalidated(noApplicant, theme) {
		t.Error("record without applicant must not qualify")
	}
}

func TestAutovalidateRecord_ValidatorRejects(t *testing.T) {
	db := openTestDB(t)
	applicant := uint(7)
	theme := createTheme(t, db, func(d *models.ElementDetail) {
		d.Autovalidation = true
	})
	rec := createRecord(t, db, theme, func(r *models.RecordCard) {
		r.ApplicantID = &applicant
	})

	res, err := AutovalidateRecord(db, rec, "looks fine", "user-1", AutovalidateOpts{
		Validator: stubValidator{accepted: false, message: "address missing"},
		Catalog:   DefaultCatalog(),
	})
	if err != nil {
		t.Fatalf("AutovalidateRecord: %v", err)
	}
	if res.Validated {
		t.Error("expected not-validated result")
	}
	if res.Message != "address missing" {
		t.Errorf("message = %q", res.Message)
	}

	// State untouched, observation comment attached.
	var fresh models.RecordCard
	db.First(&fresh, "id = ?", rec.ID)
	if fresh.RecordState != models.StatePendingValidate {
		t.Errorf("record state = %d, want pending-validate", fresh.RecordState)
	}
	var comment models.Comment
	if err := db.First(&comment, "record_card_id = ?", rec.ID).Error; err != nil {
		t.Fatalf("expected observation comment: %v", err)
	}
	if comment.Reason != models.CommentReasonValidationReject {
		t.Errorf("comment reason = %d, want validation-reject", comment.Reason)
	}
}

func TestAutovalidateRecord_ValidatorAccepts(t *testing.T) {
	db := openTestDB(t)
	applicant := uint(7)
	theme := createTheme(t, db, func(d *models.ElementDetail) {
		d.Autovalidation = true
	})
	rec := createRecord(t, db, theme, func(r *models.RecordCard) {
		r.ApplicantID = &applicant
	})

	res, err := AutovalidateRecord(db, rec, "auto", "user-1", AutovalidateOpts{
		Validator: stubValidator{accepted: true},
		Catalog:   DefaultCatalog(),
	})
	if err != nil {
		t.Fatalf("AutovalidateRecord: %v", err)
	}
	if !res.Validated {
		t.Fatal("expected validated result")
	}

	var fresh models.RecordCard
	db.First(&fresh, "id = ?", rec.ID)
	if fresh.RecordState != models.StateClosed {
		t.Errorf("record state = %d, want closed", fresh.RecordState)
	}
}

func TestAutovalidateRecord_NoValidatorClosesDirectly(t *testing.T) {
	db := openTestDB(t)
	applicant := uint(7)
	theme := createTheme(t, db, func(d *models.ElementDetail) {
		d.Autovalidation = true
	})
	rec := createRecord(t, db, theme, func(r *models.RecordCard) {
		r.ApplicantID = &applicant
	})

	res, err := AutovalidateRecord(db, rec, "", "user-1", AutovalidateOpts{
		Catalog: DefaultCatalog(),
	})
	if err != nil {
		t.Fatalf("AutovalidateRecord: %v", err)
	}
	if !res.Validated {
		t.Fatal("expected validated result")
	}

	var fresh models.RecordCard
	db.First(&fresh, "id = ?", rec.ID)
	if fresh.RecordState != models.StateClosed {
		t.Errorf("record state = %d, want closed", fresh.RecordState)
	}
}

func TestAutovalidateRecord_NotEligible(t *testing.T) {
	db := openTestDB(t)
	theme := createTheme(t, db, nil) // autovalidation disabled
	rec := createRecord(t, db, theme, nil)

	if _, err := AutovalidateRecord(db, rec, "", "user-1", AutovalidateOpts{
		Catalog: DefaultCatalog(),
	}); err == nil {
		t.Error("expected error for ineligible record")
	}
}

// staticChecker grants a fixed permission set to one group.
type staticChecker struct {
	groupID uint
	codes   map[string]bool
}

func (s staticChecker) HasPermission(groupID uint, code string) bool {
	return groupID == s.groupID && s.codes[code]
}

func TestHasExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &models.RecordCard{CreatedAt: now.AddDate(0, 0, -45)}

	plain := ExpiryOpts{
		ValidationDays:            30,
		CoordinatorValidationDays: 90,
		Now:                       now,
	}
	if !HasExpired(rec, 1, plain) {
		t.Error("45-day record should be expired for a plain group")
	}

	privileged := plain
	privileged.Checker = staticChecker{
		groupID: 1,
		codes:   map[string]bool{groups.PermCoordinatorValidationDays: true},
	}
	if HasExpired(rec, 1, privileged) {
		t.Error("coordinator override should extend the window")
	}
	if !HasExpired(rec, 2, privileged) {
		t.Error("override must not apply to other groups")
	}

	young := &models.RecordCard{CreatedAt: now.AddDate(0, 0, -3)}
	if HasExpired(young, 1, plain) {
		t.Error("3-day record should not be expired")
	}
}
