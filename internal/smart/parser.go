// Package smart turns raw smartctl output into structured health verdicts
// and provides the collector that invokes smartctl/lsblk on local devices.
package smart

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/diskwatch/diskwatch/internal/models"
)

// smartctl exit status is a bitmask. Only the low four bits are expected
// from a plain health query; anything above them means the invocation itself
// went sideways and the device must not be reported healthy.
const (
	exitCmdlineError = 1 << 0 // command line did not parse
	exitOpenFailed   = 1 << 1 // device open failed
	exitCommandError = 1 << 2 // SMART command failed or checksum error
	exitDiskFailing  = 1 << 3 // device reports failing status

	expectedExitMask = exitCmdlineError | exitOpenFailed | exitCommandError | exitDiskFailing
)

var (
	// ATA: "SMART overall-health self-assessment test result: PASSED"
	// SCSI: "SMART Health Status: OK"
	overallHealthRe = regexp.MustCompile(`SMART overall-health self-assessment test result:\s+(\S+)`)
	scsiHealthRe    = regexp.MustCompile(`SMART Health Status:\s+(.+)`)

	// Attribute table rows:
	//   5 Reallocated_Sector_Ct   0x0033   100   100   036    Pre-fail  Always       -       0
	attributeRe = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+(0x[0-9a-fA-F]+)\s+(\d+)\s+(\d+)\s+(\d+|---)\s+(\S+)\s+(\S+)\s+(\S+)\s+(.*\S)\s*$`)
)

// Assess converts one device's raw smartctl output and exit status into a
// Verdict. Unknown or unparseable state always degrades to Passed=false; the
// reason is prepended to Raw so the operator sees why.
func Assess(device string, raw []byte, exitCode int) models.Verdict {
	verdict := models.Verdict{
		Device: device,
		Raw:    string(raw),
	}

	if exitCode < 0 || exitCode&^expectedExitMask != 0 {
		verdict.Raw = annotate(fmt.Sprintf("unexpected smartctl exit status %d, treating device as unhealthy", exitCode), verdict.Raw)
		return verdict
	}

	if exitCode&(exitCmdlineError|exitOpenFailed) != 0 {
		verdict.Raw = annotate(fmt.Sprintf("smartctl could not query device (exit status %d)", exitCode), verdict.Raw)
		return verdict
	}

	if exitCode&exitCommandError != 0 {
		// A SMART command or checksum failure means any health verdict in
		// the output came from unreliable data.
		verdict.Raw = annotate(fmt.Sprintf("smartctl reported a SMART command or checksum failure (exit status %d), treating device as unhealthy", exitCode), verdict.Raw)
		return verdict
	}

	healthFound, healthPassed := parseOverallHealth(string(raw))
	failing := parseFailingAttributes(string(raw))
	verdict.FailingAttributes = failing

	switch {
	case exitCode&exitDiskFailing != 0:
		verdict.Raw = annotate("smartctl reports the device is failing (exit status bit 3)", verdict.Raw)
	case !healthFound:
		verdict.Raw = annotate("no overall-health verdict found in smartctl output, treating device as unhealthy", verdict.Raw)
	case !healthPassed:
		// Tool's own predicate says failed; Raw already carries the line.
	case len(failing) > 0:
		verdict.Raw = annotate(fmt.Sprintf("%d pre-fail attribute(s) at or below threshold", len(failing)), verdict.Raw)
	default:
		verdict.Passed = true
	}

	return verdict
}

func annotate(note, raw string) string {
	return "diskwatch: " + note + "\n" + raw
}

func parseOverallHealth(output string) (found, passed bool) {
	if m := overallHealthRe.FindStringSubmatch(output); m != nil {
		return true, strings.EqualFold(m[1], "PASSED")
	}
	if m := scsiHealthRe.FindStringSubmatch(output); m != nil {
		return true, strings.EqualFold(strings.TrimSpace(m[1]), "OK")
	}
	return false, false
}

// parseFailingAttributes scans the attribute table for pre-fail attributes
// that crossed their threshold or carry a recorded failure timestamp.
func parseFailingAttributes(output string) []models.Attribute {
	var failing []models.Attribute

	for _, line := range strings.Split(output, "\n") {
		attr, ok := parseAttributeLine(line)
		if !ok {
			continue
		}
		if attr.Failing {
			failing = append(failing, attr)
		}
	}

	return failing
}

func parseAttributeLine(line string) (models.Attribute, bool) {
	m := attributeRe.FindStringSubmatch(line)
	if m == nil {
		return models.Attribute{}, false
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		return models.Attribute{}, false
	}
	value, _ := strconv.Atoi(m[4])
	worst, _ := strconv.Atoi(m[5])
	threshold := 0
	if m[6] != "---" {
		threshold, _ = strconv.Atoi(m[6])
	}

	attr := models.Attribute{
		ID:         id,
		Name:       m[2],
		Value:      value,
		Worst:      worst,
		Threshold:  threshold,
		Type:       m[7],
		WhenFailed: m[9],
		RawValue:   m[10],
	}

	preFail := strings.EqualFold(attr.Type, "Pre-fail")
	crossed := threshold > 0 && value <= threshold
	recorded := attr.WhenFailed != "-"
	attr.Failing = (preFail && crossed) || recorded

	return attr, true
}
