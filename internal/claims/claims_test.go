package claims

import (
	"errors"
	"fmt"
	"testing"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Group{},
		&models.ElementDetail{},
		&models.RecordCard{},
		&models.Comment{},
		&models.Attachment{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func createOriginal(t *testing.T, db *gorm.DB, mut func(*models.RecordCard)) *models.RecordCard {
	t.Helper()
	theme := &models.ElementDetail{Description: "graffiti", Enabled: true}
	if err := db.Create(theme).Error; err != nil {
		t.Fatalf("create theme: %v", err)
	}
	applicant := uint(11)
	rec := &models.RecordCard{
		NormalizedRecordID: "ABC123",
		ElementDetailID:    theme.ID,
		RecordState:        models.StateClosed,
		ApplicantID:        &applicant,
		ResponseChannel:    models.ChannelSMS,
		InputChannel:       "web",
		ApplicantType:      "citizen",
		Support:            "online-form",
		Enabled:            true,
	}
	if mut != nil {
		mut(rec)
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func TestCreateRecordClaim_EmptyDescription(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	for _, desc := range []string{"", "   "} {
		if _, err := CreateRecordClaim(db, original, "user-1", desc, Options{}); !errors.Is(err, ErrEmptyDescription) {
			t.Errorf("description %q: err = %v, want ErrEmptyDescription", desc, err)
		}
	}

	var n int64
	db.Model(&models.RecordCard{}).Count(&n)
	if n != 1 {
		t.Errorf("records = %d, want only the original", n)
	}
}

func TestCreateRecordClaim_AgainstClosedRecord(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil) // closed state

	claim, err := CreateRecordClaim(db, original, "user-1", "still broken", Options{SetAlarms: true})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}
	if claim.NormalizedRecordID != "ABC123-02" {
		t.Errorf("claim reference = %q, want ABC123-02", claim.NormalizedRecordID)
	}
	if claim.ClaimedFromID == nil || *claim.ClaimedFromID != original.ID {
		t.Error("claim must point at the original")
	}
	if claim.RecordState != models.StatePendingValidate {
		t.Errorf("claim state = %d, want pending-validate", claim.RecordState)
	}

	var freshOriginal, freshClaim models.RecordCard
	db.First(&freshOriginal, "id = ?", original.ID)
	db.First(&freshClaim, "id = ?", claim.ID)
	if !freshOriginal.Alarm || !freshOriginal.CitizenAlarm {
		t.Error("original alarms not raised")
	}
	if !freshClaim.Alarm || !freshClaim.CitizenAlarm {
		t.Error("claim alarms not raised")
	}
	if freshClaim.CitizenWebAlarm {
		t.Error("non-web claim must not raise the web alarm")
	}
}

func TestCreateRecordClaim_StructuralCopy(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	claim, err := CreateRecordClaim(db, original, "user-1", "wrong resolution", Options{})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}
	if claim.ApplicantID == nil || *claim.ApplicantID != *original.ApplicantID {
		t.Error("applicant not copied")
	}
	if claim.ResponseChannel != original.ResponseChannel {
		t.Error("response channel not copied")
	}
	if claim.InputChannel != "web" || claim.ApplicantType != "citizen" || claim.Support != "online-form" {
		t.Error("input configuration not copied")
	}
	if claim.Alarm || claim.CitizenAlarm {
		t.Error("alarms must stay down without SetAlarms")
	}
}

func TestCreateRecordClaim_InternalOverrides(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	claim, err := CreateRecordClaim(db, original, "user-1", "reopen please", Options{
		SetToInternalClaim:    true,
		InternalInputChannel:  "internal",
		InternalApplicantType: "operator",
		InternalSupport:       "backoffice",
	})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}
	if claim.InputChannel != "internal" || claim.ApplicantType != "operator" || claim.Support != "backoffice" {
		t.Errorf("internal overrides not applied: %+v", claim)
	}
}

func TestCreateRecordClaim_WebClaimAlarm(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	claim, err := CreateRecordClaim(db, original, "user-1", "web claim", Options{
		IsWebClaim: true,
		SetAlarms:  true,
	})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}

	var fresh models.RecordCard
	db.First(&fresh, "id = ?", claim.ID)
	if !fresh.CitizenWebAlarm {
		t.Error("web claim must raise citizen_web_alarm on the claim")
	}
	var freshOriginal models.RecordCard
	db.First(&freshOriginal, "id = ?", original.ID)
	if freshOriginal.CitizenWebAlarm {
		t.Error("web alarm must not be raised on the original")
	}
}

func TestClaimChain_SuffixMonotonicity(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	last := original
	for i := 2; i <= 4; i++ {
		claim, err := CreateRecordClaim(db, last, "user-1", fmt.Sprintf("claim %d", i), Options{})
		if err != nil {
			t.Fatalf("CreateRecordClaim %d: %v", i, err)
		}
		want := fmt.Sprintf("ABC123-%02d", i)
		if claim.NormalizedRecordID != want {
			t.Errorf("claim %d reference = %q, want %q", i, claim.NormalizedRecordID, want)
		}
		last = claim
	}

	count, err := UpdateClaimsNumber(db, original)
	if err != nil {
		t.Fatalf("UpdateClaimsNumber: %v", err)
	}
	if count != 4 {
		t.Errorf("chain count = %d, want 4", count)
	}

	var members []models.RecordCard
	db.Find(&members)
	for _, m := range members {
		if m.ClaimsNumber != 4 {
			t.Errorf("record %s claims_number = %d, want 4", m.NormalizedRecordID, m.ClaimsNumber)
		}
	}
}

func TestChain_OrderAndLastClaim(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	c2, err := CreateRecordClaim(db, original, "user-1", "second", Options{})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}
	c3, err := CreateRecordClaim(db, c2, "user-1", "third", Options{})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}

	// Chain is discoverable from any member, root first.
	for _, start := range []*models.RecordCard{original, c2, c3} {
		chain, err := Chain(db, start)
		if err != nil {
			t.Fatalf("Chain from %s: %v", start.NormalizedRecordID, err)
		}
		if len(chain) != 3 {
			t.Fatalf("chain length = %d, want 3", len(chain))
		}
		wantOrder := []string{"ABC123", "ABC123-02", "ABC123-03"}
		for i, m := range chain {
			if m.NormalizedRecordID != wantOrder[i] {
				t.Errorf("chain[%d] = %q, want %q", i, m.NormalizedRecordID, wantOrder[i])
			}
		}
	}

	lastClaim, err := GetLastClaim(db, original)
	if err != nil {
		t.Fatalf("GetLastClaim: %v", err)
	}
	if lastClaim.NormalizedRecordID != "ABC123-03" {
		t.Errorf("last claim = %q, want ABC123-03", lastClaim.NormalizedRecordID)
	}
}

func TestPosition(t *testing.T) {
	cases := map[string]int{
		"ABC123":    1,
		"ABC123-02": 2,
		"ABC123-11": 11,
	}
	for norm, want := range cases {
		rec := &models.RecordCard{NormalizedRecordID: norm}
		if got := Position(rec); got != want {
			t.Errorf("Position(%q) = %d, want %d", norm, got, want)
		}
	}
}

func TestCreateRecordClaim_WritesClaimComment(t *testing.T) {
	db := openTestDB(t)
	original := createOriginal(t, db, nil)

	claim, err := CreateRecordClaim(db, original, "user-7", "needs another visit", Options{})
	if err != nil {
		t.Fatalf("CreateRecordClaim: %v", err)
	}

	var comment models.Comment
	if err := db.First(&comment, "record_card_id = ?", claim.ID).Error; err != nil {
		t.Fatalf("expected claim comment: %v", err)
	}
	if comment.Reason != models.CommentReasonClaim {
		t.Errorf("comment reason = %d, want claim", comment.Reason)
	}
	if comment.Text != "needs another visit" {
		t.Errorf("comment text = %q", comment.Text)
	}
}
