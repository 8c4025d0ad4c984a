package deadlines

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const defaultSweepInterval = time.Hour

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// SweepResult summarizes one pass over the open records.
type SweepResult struct {
	Stamped    int // records that got their limit columns filled in
	NearExpire int // records newly flagged as near expiry
	Expired    int // open records already past their answer deadline
}

// Sweep makes one pass over open records: fills in missing deadline columns,
// raises the alarm on records past their near-expiry mark, and counts records
// past their answer deadline.
func Sweep(db *gorm.DB, opts Options, out io.Writer) (*SweepResult, error) {
	if db == nil {
		return nil, fmt.Errorf("deadlines: db is required")
	}
	if out == nil {
		out = io.Discard
	}

	now := opts.now()
	result := &SweepResult{}

	// Phase 1: stamp records that were never given limits.
	var unstamped []models.RecordCard
	err := db.Where("enabled = ? AND ans_limit_date IS NULL AND record_state IN ?",
		true, models.OpenStates()).Find(&unstamped).Error
	if err != nil {
		return nil, fmt.Errorf("deadlines: list unstamped records: %w", err)
	}
	for i := range unstamped {
		if err := SetAnsLimits(db, &unstamped[i], opts); err != nil {
			log.Printf("deadlines: sweep stamp %s: %v", unstamped[i].NormalizedRecordID, err)
			continue
		}
		result.Stamped++
	}

	// Phase 2: raise the alarm on records past their near-expiry mark.
	var nearing []models.RecordCard
	err = db.Where("enabled = ? AND record_state IN ? AND alarm = ? AND ans_limit_nearexpire IS NOT NULL AND ans_limit_nearexpire <= ?",
		true, models.OpenStates(), false, now).Find(&nearing).Error
	if err != nil {
		return nil, fmt.Errorf("deadlines: list near-expire records: %w", err)
	}
	for _, rec := range nearing {
		err := db.Model(&models.RecordCard{}).Where("id = ?", rec.ID).
			Update("alarm", true).Error
		if err != nil {
			log.Printf("deadlines: sweep alarm %s: %v", rec.NormalizedRecordID, err)
			continue
		}
		fmt.Fprintf(out, "Record %s near expiry (limit %s)\n",
			rec.NormalizedRecordID, rec.AnsLimitDate.Format(time.RFC3339))
		result.NearExpire++
	}

	// Phase 3: report records already past their deadline.
	var expired []models.RecordCard
	err = db.Where("enabled = ? AND record_state IN ? AND ans_limit_date IS NOT NULL AND ans_limit_date <= ?",
		true, models.OpenStates(), now).Find(&expired).Error
	if err != nil {
		return nil, fmt.Errorf("deadlines: list expired records: %w", err)
	}
	for _, rec := range expired {
		fmt.Fprintf(out, "Record %s past answer deadline (%s)\n",
			rec.NormalizedRecordID, rec.AnsLimitDate.Format(time.RFC3339))
	}
	result.Expired = len(expired)

	return result, nil
}

// RunDaemon runs the deadline sweep on a cron schedule until ctx is
// cancelled. An empty or unparsable expression falls back to a fixed
// interval.
func RunDaemon(ctx context.Context, db *gorm.DB, cronExpr string, opts Options, out io.Writer) error {
	if db == nil {
		return fmt.Errorf("deadlines: db is required")
	}
	if out == nil {
		out = io.Discard
	}

	fmt.Fprintf(out, "Deadline sweep daemon starting (schedule %q)...\n", cronExpr)
	for {
		d := nextCronDuration(cronExpr)
		if d == 0 {
			d = defaultSweepInterval
		}
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "Deadline sweep daemon stopped.\n")
			return nil
		case <-time.After(d):
		}

		result, err := Sweep(db, opts, out)
		if err != nil {
			log.Printf("deadlines: sweep pass: %v", err)
			continue
		}
		fmt.Fprintf(out, "Sweep pass: %d stamped, %d near expiry, %d expired\n",
			result.Stamped, result.NearExpire, result.Expired)
	}
}
