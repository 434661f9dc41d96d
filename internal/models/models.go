// Package models defines the shared data types that flow between the
// collector, scanner, assessor, alerting, and repair packages.
package models

import (
	"time"
)

// Severity classifies the health of a disk or the weight of a log event.
type Severity int

const (
	SeverityHealthy Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityHealthy:
		return "healthy"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Attribute is a single row from the SMART attribute table.
type Attribute struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Value      int    `json:"value"`
	Worst      int    `json:"worst"`
	Threshold  int    `json:"threshold"`
	Type       string `json:"type"` // Pre-fail or Old_age
	WhenFailed string `json:"whenFailed,omitempty"`
	RawValue   string `json:"rawValue"`
	Failing    bool   `json:"failing"`
}

// Verdict is the structured health result for one device's SMART scan.
// A device that could not be parsed reports Passed=false with the reason
// recorded in Raw; unknown is never treated as healthy.
type Verdict struct {
	Device            string      `json:"device"`
	Passed            bool        `json:"passed"`
	FailingAttributes []Attribute `json:"failingAttributes,omitempty"`
	Raw               string      `json:"raw"`
}

// LogEvent is a matched disk-error line from the system log. Device is the
// parent disk the line could be attributed to, or empty when no device token
// was found in the line.
type LogEvent struct {
	Device    string    `json:"device,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// Unattributed reports whether the event could not be tied to a device.
func (e LogEvent) Unattributed() bool {
	return e.Device == ""
}

// Assessment merges the SMART verdict and log events for one device into a
// single per-cycle health result. Owned by the cycle that produced it.
type Assessment struct {
	Device   string     `json:"device"`
	Smart    Verdict    `json:"smart"`
	Errors   []LogEvent `json:"errors,omitempty"`
	Severity Severity   `json:"severity"`
}

// AlertRecord remembers the last alert sent for a device. The record table is
// process-scoped and resets on restart; durability across restarts is out of
// scope for this core.
type AlertRecord struct {
	Device       string    `json:"device"`
	LastSentAt   time.Time `json:"lastSentAt"`
	LastSeverity Severity  `json:"lastSeverity"`
}

// RepairPlan describes one operator-confirmed repair: unmount the mount
// point, run the consistency check on the device, remount. Consumed by a
// single sequencer run and never shared between concurrent operations.
type RepairPlan struct {
	Device     string `json:"device"`
	MountPoint string `json:"mountPoint"`
}
