// Package qc holds the quality-control reminder task, the second named
// job alongside the backup schedule.
package qc

import (
	"log/slog"
	"time"

	"github.com/rowanhale/labwise/internal/store"
)

// JobName is the registry name of the QC reminder job.
const JobName = "qc-reminder"

// Schedule runs the check daily at 08:00 UTC.
const Schedule = "0 8 * * *"

// overdueAfter is how long a failed QC result may sit before it is
// flagged.
const overdueAfter = 24 * time.Hour

// Reminder flags failed quality-control results that nobody has acted
// on.
type Reminder struct {
	qc     *store.QCStore
	notify func(results []store.QCResult)
	logger *slog.Logger
}

// NewReminder creates a QC reminder. notify may be nil.
func NewReminder(qc *store.QCStore, notify func([]store.QCResult), logger *slog.Logger) *Reminder {
	return &Reminder{qc: qc, notify: notify, logger: logger}
}

// Check is the job callback.
func (r *Reminder) Check() {
	before := time.Now().UTC().Add(-overdueAfter)
	overdue, err := r.qc.ListOverdueFailures(before)
	if err != nil {
		r.logger.Error("qc reminder: list overdue failures", "error", err)
		return
	}
	if len(overdue) == 0 {
		return
	}

	r.logger.Warn("overdue qc failures", "count", len(overdue))
	for _, result := range overdue {
		r.logger.Warn("qc alert", "automate", result.Automate, "test", result.TestName, "since", result.Timestamp)
	}

	if r.notify != nil {
		r.notify(overdue)
	}
}
