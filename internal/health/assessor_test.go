package health

import (
	"testing"

	"github.com/diskwatch/diskwatch/internal/models"
)

func passedVerdict(device string) models.Verdict {
	return models.Verdict{Device: device, Passed: true, Raw: "PASSED"}
}

func failedVerdict(device string) models.Verdict {
	return models.Verdict{Device: device, Passed: false, Raw: "FAILED"}
}

func TestAssessSeverityInvariant(t *testing.T) {
	warning := models.LogEvent{Severity: models.SeverityWarning, Message: "ata1: hard resetting link"}
	critical := models.LogEvent{Severity: models.SeverityCritical, Message: "I/O error, dev sda"}

	tests := []struct {
		name    string
		verdict models.Verdict
		events  []models.LogEvent
		want    models.Severity
	}{
		{"passed no events", passedVerdict("/dev/sda"), nil, models.SeverityHealthy},
		{"passed warning events", passedVerdict("/dev/sda"), []models.LogEvent{warning}, models.SeverityWarning},
		{"passed critical event", passedVerdict("/dev/sda"), []models.LogEvent{critical}, models.SeverityCritical},
		{"failed smart no events", failedVerdict("/dev/sda"), nil, models.SeverityCritical},
		{"failed smart with warnings", failedVerdict("/dev/sda"), []models.LogEvent{warning}, models.SeverityCritical},
		{"mixed events", passedVerdict("/dev/sda"), []models.LogEvent{warning, critical, warning}, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := Assess("/dev/sda", tt.verdict, tt.events)
			if assessment.Severity != tt.want {
				t.Errorf("severity = %s, want %s", assessment.Severity, tt.want)
			}
		})
	}
}

func TestAssessOrderIndependent(t *testing.T) {
	warning := models.LogEvent{Severity: models.SeverityWarning, Message: "w"}
	critical := models.LogEvent{Severity: models.SeverityCritical, Message: "c"}

	forward := Assess("/dev/sda", passedVerdict("/dev/sda"), []models.LogEvent{warning, critical})
	backward := Assess("/dev/sda", passedVerdict("/dev/sda"), []models.LogEvent{critical, warning})

	if forward.Severity != backward.Severity {
		t.Errorf("severity depends on event order: %s vs %s", forward.Severity, backward.Severity)
	}
	if forward.Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", forward.Severity)
	}
}

func TestAssessPreservesEventOrder(t *testing.T) {
	events := []models.LogEvent{
		{Severity: models.SeverityWarning, Message: "first"},
		{Severity: models.SeverityCritical, Message: "second"},
		{Severity: models.SeverityWarning, Message: "third"},
	}

	assessment := Assess("/dev/sda", passedVerdict("/dev/sda"), events)
	for i, want := range []string{"first", "second", "third"} {
		if assessment.Errors[i].Message != want {
			t.Errorf("Errors[%d].Message = %q, want %q", i, assessment.Errors[i].Message, want)
		}
	}
}
