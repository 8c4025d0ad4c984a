package lifecycle

import (
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/groups"
	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
)

// Default staleness windows, in days. Configurable through ExpiryOpts.
const (
	DefaultValidationDays            = 30
	DefaultCoordinatorValidationDays = 90
)

// ExpiryOpts configures HasExpired.
type ExpiryOpts struct {
	ValidationDays            int
	CoordinatorValidationDays int
	Checker                   groups.Checker
	Now                       time.Time
}

// HasExpired reports whether the record has exceeded its staleness window.
// Groups holding the coordinator-validation-days permission get the extended
// window instead.
func HasExpired(record *models.RecordCard, requestingGroupID uint, opts ExpiryOpts) bool {
	if record == nil {
		return false
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := opts.ValidationDays
	if days <= 0 {
		days = DefaultValidationDays
	}
	coordinatorDays := opts.CoordinatorValidationDays
	if coordinatorDays <= 0 {
		coordinatorDays = DefaultCoordinatorValidationDays
	}

	window := days
	if opts.Checker != nil && opts.Checker.HasPermission(requestingGroupID, groups.PermCoordinatorValidationDays) {
		window = coordinatorDays
	}

	age := now.Sub(record.CreatedAt)
	return age > time.Duration(window)*24*time.Hour
}
