// Package notify delivers record routing events to chat platforms (Slack,
// Discord, etc.). Delivery is best effort: callers fire notifications after
// their transaction commits and log failures instead of propagating them.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"gorm.io/gorm"
)

// Sidebar color hints shared by all platforms.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

const sendTimeout = 10 * time.Second

// Event is a routing event formatted for display in chat.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string
	Fields   []Field
}

// Field is a key-value pair displayed alongside an event.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Notifier is the interface that platform-specific senders must satisfy.
type Notifier interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) Send(ctx context.Context, event Event) error { return nil }
func (Nop) Close() error                                { return nil }

// Multi fans an event out to several notifiers. Send returns the first error
// but still attempts every notifier.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, event Event) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, n := range m {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Announcer formats allocation and alert events and pushes them through a
// Notifier. It satisfies the AllocationNotifier interfaces of the derivation
// and claims packages.
type Announcer struct {
	DB       *gorm.DB
	Notifier Notifier
}

// NotifyAllocation announces that a record was assigned to a group.
func (a *Announcer) NotifyAllocation(groupID uint, recordID string) error {
	if a == nil || a.Notifier == nil {
		return nil
	}

	groupName := fmt.Sprintf("group %d", groupID)
	recordRef := recordID
	if a.DB != nil {
		var group models.Group
		if err := a.DB.First(&group, "id = ?", groupID).Error; err == nil && group.Name != "" {
			groupName = group.Name
		}
		var record models.RecordCard
		if err := a.DB.First(&record, "id = ?", recordID).Error; err == nil {
			recordRef = record.NormalizedRecordID
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return a.Notifier.Send(ctx, Event{
		Title:    fmt.Sprintf("Record %s assigned", recordRef),
		Body:     fmt.Sprintf("Record %s is now the responsibility of %s.", recordRef, groupName),
		Severity: "info",
		Color:    ColorInfo,
		Fields: []Field{
			{Name: "Record", Value: recordRef, Short: true},
			{Name: "Group", Value: groupName, Short: true},
		},
	})
}

// NotifyDeadlineAlert announces that records are nearing or past their answer
// deadline.
func (a *Announcer) NotifyDeadlineAlert(nearExpire, expired int) error {
	if a == nil || a.Notifier == nil {
		return nil
	}
	if nearExpire == 0 && expired == 0 {
		return nil
	}

	severity, color := "warning", ColorWarning
	if expired > 0 {
		severity, color = "error", ColorError
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return a.Notifier.Send(ctx, Event{
		Title:    "Answer deadline alert",
		Body:     fmt.Sprintf("%d records near expiry, %d past their answer deadline.", nearExpire, expired),
		Severity: severity,
		Color:    color,
		Fields: []Field{
			{Name: "Near expiry", Value: fmt.Sprintf("%d", nearExpire), Short: true},
			{Name: "Expired", Value: fmt.Sprintf("%d", expired), Short: true},
		},
	})
}
