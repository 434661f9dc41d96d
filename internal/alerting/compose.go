package alerting

import (
	"fmt"
	"strings"

	"github.com/diskwatch/diskwatch/internal/models"
)

// Composer renders assessments into mail subjects and bodies. Output is
// deterministic: the same assessment always produces byte-identical text,
// with attributes and log events in the order they were received.
type Composer struct {
	Hostname string
}

// NewComposer creates a composer labeling alerts with the given hostname.
func NewComposer(hostname string) *Composer {
	return &Composer{Hostname: hostname}
}

// Compose renders the alert subject and plain-text body for an assessment.
func (c *Composer) Compose(assessment models.Assessment) (subject, body string) {
	subject = fmt.Sprintf("Disk health alert on %s: %s is %s",
		c.Hostname, assessment.Device, assessment.Severity)

	var b strings.Builder
	fmt.Fprintf(&b, "Disk health issue detected on %s.\n\n", c.Hostname)
	fmt.Fprintf(&b, "Device:   %s\n", assessment.Device)
	fmt.Fprintf(&b, "Severity: %s\n", assessment.Severity)

	if assessment.Smart.Passed {
		b.WriteString("SMART:    passed\n")
	} else {
		b.WriteString("SMART:    FAILED\n")
	}

	if len(assessment.Smart.FailingAttributes) > 0 {
		b.WriteString("\nFailing SMART attributes:\n")
		for _, attr := range assessment.Smart.FailingAttributes {
			fmt.Fprintf(&b, " - %s (id %d): value %d, threshold %d, type %s, raw %s\n",
				attr.Name, attr.ID, attr.Value, attr.Threshold, attr.Type, attr.RawValue)
		}
	}

	if len(assessment.Errors) > 0 {
		b.WriteString("\nMatched system log entries:\n")
		for _, event := range assessment.Errors {
			fmt.Fprintf(&b, " - [%s] %s\n", event.Severity, event.Message)
		}
	}

	b.WriteString("\nInspect the device and consider running: diskwatch repair <device>\n")

	return subject, b.String()
}
