// Package health merges SMART verdicts and log events into per-device
// assessments.
package health

import (
	"github.com/diskwatch/diskwatch/internal/models"
)

// Assess merges one device's SMART verdict and log events into a single
// assessment. Pure function, no I/O.
//
// Severity invariant: critical iff the SMART verdict failed or any event is
// critical; warning iff not critical and any events exist; healthy otherwise.
// The result does not depend on event ordering.
func Assess(device string, verdict models.Verdict, events []models.LogEvent) models.Assessment {
	assessment := models.Assessment{
		Device:   device,
		Smart:    verdict,
		Errors:   events,
		Severity: models.SeverityHealthy,
	}

	if !verdict.Passed || anyCritical(events) {
		assessment.Severity = models.SeverityCritical
	} else if len(events) > 0 {
		assessment.Severity = models.SeverityWarning
	}

	return assessment
}

func anyCritical(events []models.LogEvent) bool {
	for _, e := range events {
		if e.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
