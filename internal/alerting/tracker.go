// Package alerting decides when a disk assessment warrants an alert,
// deduplicates repeat alerts, and composes and dispatches the message.
package alerting

import (
	"sync"
	"time"

	"github.com/diskwatch/diskwatch/internal/models"
)

// Tracker holds the process-scoped alert-record table. It is the only shared
// mutable state in a scan cycle, so all access is serialized here. Records
// are not persisted; a restart deliberately resets dedup state.
type Tracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	records  map[string]models.AlertRecord
}

// NewTracker creates a tracker with the given dedup cooldown.
func NewTracker(cooldown time.Duration) *Tracker {
	return &Tracker{
		cooldown: cooldown,
		records:  make(map[string]models.AlertRecord),
	}
}

// SetCooldown updates the dedup window, e.g. after a config reload.
func (t *Tracker) SetCooldown(cooldown time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cooldown = cooldown
}

// ShouldAlert reports whether an alert must fire for this assessment now.
func (t *Tracker) ShouldAlert(assessment models.Assessment, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var prior *models.AlertRecord
	if rec, ok := t.records[assessment.Device]; ok {
		prior = &rec
	}
	return shouldAlert(assessment.Severity, prior, now, t.cooldown)
}

// MarkSent commits the alert record for a device. Callers invoke this only
// after the transport reported success, so a cancelled or failed cycle
// leaves dedup state untouched.
func (t *Tracker) MarkSent(assessment models.Assessment, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[assessment.Device] = models.AlertRecord{
		Device:       assessment.Device,
		LastSentAt:   now,
		LastSeverity: assessment.Severity,
	}
}

// Record returns the stored alert record for a device, if any.
func (t *Tracker) Record(device string) (models.AlertRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[device]
	return rec, ok
}

// shouldAlert is the pure decision function. An alert fires for a warning or
// critical assessment when there is no prior record, when severity escalated
// since the last alert (escalations bypass the cooldown entirely), or when
// the cooldown has elapsed.
func shouldAlert(severity models.Severity, prior *models.AlertRecord, now time.Time, cooldown time.Duration) bool {
	if severity < models.SeverityWarning {
		return false
	}
	if prior == nil {
		return true
	}
	if severity > prior.LastSeverity {
		return true
	}
	return now.Sub(prior.LastSentAt) >= cooldown
}
