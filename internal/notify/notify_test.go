package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	slackapi "github.com/slack-go/slack"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingNotifier captures sent events for assertions.
type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Send(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}
func (r *recordingNotifier) Close() error { return nil }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Group{}, &models.ElementDetail{}, &models.RecordCard{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestAnnouncer_NotifyAllocation(t *testing.T) {
	db := openTestDB(t)

	group := &models.Group{Name: "Parks and Gardens", Plate: "0102", Enabled: true}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	theme := &models.ElementDetail{Description: "tree pruning", Enabled: true}
	if err := db.Create(theme).Error; err != nil {
		t.Fatalf("create theme: %v", err)
	}
	record := &models.RecordCard{
		NormalizedRecordID: "ABC123",
		ElementDetailID:    theme.ID,
		Enabled:            true,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}

	rec := &recordingNotifier{}
	a := &Announcer{DB: db, Notifier: rec}
	if err := a.NotifyAllocation(group.ID, record.ID); err != nil {
		t.Fatalf("NotifyAllocation: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Title != "Record ABC123 assigned" {
		t.Errorf("title = %q", ev.Title)
	}
	if len(ev.Fields) != 2 || ev.Fields[1].Value != "Parks and Gardens" {
		t.Errorf("fields = %+v, want group name resolved", ev.Fields)
	}
}

func TestAnnouncer_NotifyDeadlineAlert(t *testing.T) {
	rec := &recordingNotifier{}
	a := &Announcer{Notifier: rec}

	if err := a.NotifyDeadlineAlert(0, 0); err != nil {
		t.Fatalf("NotifyDeadlineAlert: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatal("nothing to report must send nothing")
	}

	if err := a.NotifyDeadlineAlert(2, 0); err != nil {
		t.Fatalf("NotifyDeadlineAlert: %v", err)
	}
	if rec.events[0].Severity != "warning" {
		t.Errorf("severity = %q, want warning", rec.events[0].Severity)
	}

	if err := a.NotifyDeadlineAlert(2, 1); err != nil {
		t.Fatalf("NotifyDeadlineAlert: %v", err)
	}
	if rec.events[1].Severity != "error" {
		t.Errorf("severity = %q, want error with expired records", rec.events[1].Severity)
	}
}

func TestMulti(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	working := &recordingNotifier{}
	m := Multi{failing, working}

	err := m.Send(context.Background(), Event{Title: "t"})
	if err == nil {
		t.Error("Send must surface the first error")
	}
	if len(working.events) != 1 {
		t.Error("Send must still reach every notifier")
	}
}

// mockSlackClient records PostMessage calls.
type mockSlackClient struct {
	channels []string
	options  [][]slackapi.MsgOption
	err      error
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.channels = append(m.channels, channelID)
	m.options = append(m.options, options)
	return "", "", m.err
}

func TestSlack_Send(t *testing.T) {
	mock := &mockSlackClient{}
	s, err := NewSlack(SlackOpts{ChannelID: "C123", Client: mock})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}

	event := Event{
		Title:  "Record ABC123 assigned",
		Body:   "now with Parks and Gardens",
		Color:  ColorInfo,
		Fields: []Field{{Name: "Record", Value: "ABC123", Short: true}},
	}
	if err := s.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mock.channels) != 1 || mock.channels[0] != "C123" {
		t.Errorf("channels = %v, want one post to C123", mock.channels)
	}

	mock.err = errors.New("channel_not_found")
	if err := s.Send(context.Background(), event); err == nil {
		t.Error("Send must surface API errors")
	}
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack(SlackOpts{ChannelID: "C123"}); err == nil {
		t.Error("missing token must fail")
	}
	if _, err := NewSlack(SlackOpts{BotToken: "xoxb-x"}); err == nil {
		t.Error("missing channel must fail")
	}
}

func TestHexToColor(t *testing.T) {
	if got := hexToColor(ColorError); got != 0xe53935 {
		t.Errorf("hexToColor(%q) = %#x, want 0xe53935", ColorError, got)
	}
	if got := hexToColor("not-a-color"); got != 0 {
		t.Errorf("hexToColor garbage = %d, want 0", got)
	}
}
