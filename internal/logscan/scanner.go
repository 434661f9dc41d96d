// Package logscan matches disk-error signatures in system log lines and
// attributes them to devices where a device token is present.
package logscan

import (
	"regexp"
	"strings"
	"time"

	"github.com/diskwatch/diskwatch/internal/models"
)

var timeNow = time.Now

// rule is one fixed pattern the scanner applies to every line.
type rule struct {
	name     string
	re       *regexp.Regexp
	severity models.Severity
}

// The rule set is fixed. An I/O or medium error and a forced read-only
// remount are immediate critical signals; link resets and failed commands
// are warnings until SMART agrees something is wrong.
var rules = []rule{
	{"io_error", regexp.MustCompile(`(?i)\bI/O error\b`), models.SeverityCritical},
	{"medium_error", regexp.MustCompile(`(?i)\bmedium error\b`), models.SeverityCritical},
	{"remount_readonly", regexp.MustCompile(`(?i)remount(?:ing|ed)?[^\n]*read-only`), models.SeverityCritical},
	{"ata_reset", regexp.MustCompile(`(?i)(?:hard resetting link|resetting link|ata\d+(?:\.\d+)?: .*\breset\b)`), models.SeverityWarning},
	{"rw_failure", regexp.MustCompile(`(?i)(?:failed command: (?:READ|WRITE)|\bread error\b|\bwrite error\b)`), models.SeverityWarning},
}

// deviceTokenRe finds a block-device name inside a log line. Partition
// suffixes are captured so they can be folded onto the parent disk.
var deviceTokenRe = regexp.MustCompile(`\b(sd[a-z]+|hd[a-z]+|vd[a-z]+|xvd[a-z]+|nvme\d+n\d+|md\d+)(p?\d+)?\b`)

// Timestamp layouts seen at the front of journalctl/syslog lines.
var (
	syslogTimeRe = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s`)
	isoTimeRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[+-]\d{2}:?\d{2}|Z)?)\s`)
)

// Scan applies the rule set to each line and returns matched events in the
// input's chronological order. Lines whose parsed timestamp predates since
// are skipped; lines without a parseable timestamp are kept, because losing
// an I/O error report to a format quirk is worse than a duplicate.
func Scan(lines []string, since time.Time) []models.LogEvent {
	var events []models.LogEvent

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		matched, severity := matchRules(trimmed)
		if !matched {
			continue
		}

		ts, tsOK := parseLineTimestamp(trimmed)
		if tsOK && !since.IsZero() && ts.Before(since) {
			continue
		}

		events = append(events, models.LogEvent{
			Device:    extractDevice(trimmed),
			Timestamp: ts,
			Severity:  severity,
			Message:   trimmed,
		})
	}

	return events
}

// matchRules returns the highest severity among matching rules.
func matchRules(line string) (bool, models.Severity) {
	matched := false
	severity := models.SeverityWarning
	for _, r := range rules {
		if !r.re.MatchString(line) {
			continue
		}
		matched = true
		if r.severity > severity {
			severity = r.severity
		}
	}
	return matched, severity
}

// extractDevice pulls a device token from the line and normalizes it to the
// parent disk path (sda1 -> /dev/sda, nvme0n1p2 -> /dev/nvme0n1). Returns
// empty when the line carries no recognizable token; such events are still
// surfaced, just unattributed.
func extractDevice(line string) string {
	m := deviceTokenRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return "/dev/" + m[1]
}

func parseLineTimestamp(line string) (time.Time, bool) {
	if m := isoTimeRe.FindStringSubmatch(line); m != nil {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, m[1]); err == nil {
				return ts, true
			}
		}
	}
	if m := syslogTimeRe.FindStringSubmatch(line); m != nil {
		if ts, err := time.Parse("Jan 2 15:04:05", strings.Join(strings.Fields(m[1]), " ")); err == nil {
			// Syslog timestamps carry no year; assume the current one.
			now := timeNow()
			ts = ts.AddDate(now.Year(), 0, 0)
			if ts.After(now.AddDate(0, 0, 1)) {
				ts = ts.AddDate(-1, 0, 0)
			}
			return ts, true
		}
	}
	return time.Time{}, false
}
