package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diskwatch/diskwatch/internal/alerting"
	"github.com/diskwatch/diskwatch/internal/models"
)

const smartPassed = "SMART overall-health self-assessment test result: PASSED\n"
const smartFailed = "SMART overall-health self-assessment test result: FAILED!\n"

// fakeDiag scripts per-device smartctl outcomes. Run is called from
// concurrent goroutines, so the call counter takes the lock.
type fakeDiag struct {
	devices   []string
	listErr   error
	raw       map[string]string
	exitCodes map[string]int
	runErrs   map[string]error

	mu         sync.Mutex
	runCounter int
}

func (d *fakeDiag) ListDevices(ctx context.Context) ([]string, error) {
	return d.devices, d.listErr
}

func (d *fakeDiag) Run(ctx context.Context, device string) (int, []byte, error) {
	d.mu.Lock()
	d.runCounter++
	d.mu.Unlock()
	if err := d.runErrs[device]; err != nil {
		return 0, nil, err
	}
	return d.exitCodes[device], []byte(d.raw[device]), nil
}

type fakeSource struct {
	lines []string
	err   error
}

func (s *fakeSource) FetchLogs(ctx context.Context, since time.Time) ([]string, error) {
	return s.lines, s.err
}

type countingMailer struct {
	calls int
	err   error
}

func (m *countingMailer) Send(ctx context.Context, subject, body string) error {
	m.calls++
	return m.err
}

func healthyDiag(devices ...string) *fakeDiag {
	raw := make(map[string]string, len(devices))
	for _, d := range devices {
		raw[d] = smartPassed
	}
	return &fakeDiag{devices: devices, raw: raw}
}

func findAssessment(t *testing.T, summary Summary, device string) models.Assessment {
	t.Helper()
	for _, a := range summary.Assessments {
		if a.Device == device {
			return a
		}
	}
	t.Fatalf("no assessment for %s in %+v", device, summary.Assessments)
	return models.Assessment{}
}

func TestRunCycleAllHealthy(t *testing.T) {
	m := New(healthyDiag("/dev/sda", "/dev/sdb"), &fakeSource{}, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Devices != 2 || summary.Healthy != 2 {
		t.Errorf("devices=%d healthy=%d, want 2/2", summary.Devices, summary.Healthy)
	}
	if summary.Findings() {
		t.Error("healthy cycle must report no findings")
	}
	if summary.CycleID == "" {
		t.Error("summary must carry a cycle ID")
	}
}

func TestRunCycleListDevicesFailure(t *testing.T) {
	m := New(&fakeDiag{listErr: errors.New("lsblk missing")}, &fakeSource{}, nil, time.Hour)

	if _, err := m.RunCycle(context.Background()); err == nil {
		t.Fatal("device enumeration failure must abort the cycle")
	}
}

func TestRunCycleDeviceFailureIsolated(t *testing.T) {
	diag := healthyDiag("/dev/sda", "/dev/sdb", "/dev/sdc")
	diag.runErrs = map[string]error{"/dev/sdb": errors.New("smartctl: unable to open device")}
	m := New(diag, &fakeSource{}, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("one device's failure must not abort the cycle: %v", err)
	}
	if len(summary.DeviceErrors) != 1 || summary.DeviceErrors[0].Device != "/dev/sdb" {
		t.Fatalf("DeviceErrors = %+v, want one entry for /dev/sdb", summary.DeviceErrors)
	}
	// Fail-safe: the broken device counts as critical, the others as healthy.
	if got := findAssessment(t, summary, "/dev/sdb").Severity; got != models.SeverityCritical {
		t.Errorf("failed diagnostic severity = %s, want critical", got)
	}
	if summary.Healthy != 2 || summary.Criticals != 1 {
		t.Errorf("healthy=%d criticals=%d, want 2/1", summary.Healthy, summary.Criticals)
	}
}

func TestRunCycleSmartFailureIsCritical(t *testing.T) {
	diag := healthyDiag("/dev/sda", "/dev/sdb")
	diag.raw["/dev/sdb"] = smartFailed
	m := New(diag, &fakeSource{}, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := findAssessment(t, summary, "/dev/sdb").Severity; got != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", got)
	}
	if !summary.Findings() {
		t.Error("critical device must register as a finding")
	}
}

func TestRunCycleLogEventsMergedByDevice(t *testing.T) {
	diag := healthyDiag("/dev/sda", "/dev/sdb")
	// Lines without timestamps sit inside any scan window.
	source := &fakeSource{lines: []string{
		"kernel: ata1: hard resetting link on sda",
		"kernel: I/O error, dev sdb, sector 100",
	}}
	m := New(diag, source, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := findAssessment(t, summary, "/dev/sda").Severity; got != models.SeverityWarning {
		t.Errorf("sda severity = %s, want warning", got)
	}
	if got := findAssessment(t, summary, "/dev/sdb").Severity; got != models.SeverityCritical {
		t.Errorf("sdb severity = %s, want critical", got)
	}
}

func TestRunCycleUnattributedEventsSurface(t *testing.T) {
	diag := healthyDiag("/dev/sda")
	source := &fakeSource{lines: []string{
		"kernel: ata9.00: failed command: WRITE FPDMA QUEUED",
	}}
	m := New(diag, source, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	unattributed := findAssessment(t, summary, UnattributedDevice)
	if unattributed.Severity != models.SeverityWarning {
		t.Errorf("unattributed severity = %s, want warning", unattributed.Severity)
	}
	if len(unattributed.Errors) != 1 {
		t.Errorf("expected the event attached, got %d", len(unattributed.Errors))
	}
}

func TestRunCycleLogOnlyDeviceAssessed(t *testing.T) {
	// A device past enumeration (e.g. excluded or detached) still gets its
	// log events surfaced under a synthetic verdict.
	diag := healthyDiag("/dev/sda")
	source := &fakeSource{lines: []string{
		"kernel: I/O error, dev sdz, sector 5",
	}}
	m := New(diag, source, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	logOnly := findAssessment(t, summary, "/dev/sdz")
	if logOnly.Severity != models.SeverityCritical {
		t.Errorf("log-only severity = %s, want critical", logOnly.Severity)
	}
	if !logOnly.Smart.Passed {
		t.Error("synthetic verdict must not itself mark the device critical")
	}
}

func TestRunCycleLogFetchFailureDegrades(t *testing.T) {
	diag := healthyDiag("/dev/sda")
	diag.raw["/dev/sda"] = smartFailed
	m := New(diag, &fakeSource{err: errors.New("journalctl missing")}, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("log fetch failure must not abort the cycle: %v", err)
	}
	if summary.Criticals != 1 {
		t.Errorf("SMART verdicts must still be assessed, criticals=%d", summary.Criticals)
	}
}

func TestRunCycleDispatchesAlerts(t *testing.T) {
	diag := healthyDiag("/dev/sda", "/dev/sdb")
	diag.raw["/dev/sdb"] = smartFailed
	mailer := &countingMailer{}
	dispatcher := alerting.NewDispatcher(
		alerting.NewTracker(time.Hour), alerting.NewComposer("storage01"), mailer)
	m := New(diag, &fakeSource{}, dispatcher, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.AlertsAttempted != 1 || summary.AlertsSent != 1 {
		t.Errorf("attempted=%d sent=%d, want 1/1", summary.AlertsAttempted, summary.AlertsSent)
	}
	if mailer.calls != 1 {
		t.Errorf("mailer called %d times, want 1 (healthy device must not alert)", mailer.calls)
	}
	if summary.TransportFailed {
		t.Error("no transport failure expected")
	}

	// Second cycle inside the cooldown is suppressed.
	summary, err = m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.AlertsAttempted != 0 || mailer.calls != 1 {
		t.Errorf("repeat alert inside cooldown must be suppressed, attempted=%d calls=%d",
			summary.AlertsAttempted, mailer.calls)
	}
}

func TestRunCycleTransportFailureFlagged(t *testing.T) {
	diag := healthyDiag("/dev/sda")
	diag.raw["/dev/sda"] = smartFailed
	mailer := &countingMailer{err: errors.New("connection refused")}
	dispatcher := alerting.NewDispatcher(
		alerting.NewTracker(time.Hour), alerting.NewComposer("storage01"), mailer)
	m := New(diag, &fakeSource{}, dispatcher, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("transport failure must not abort the cycle: %v", err)
	}
	if !summary.TransportFailed {
		t.Error("summary must flag the transport failure")
	}
	if summary.AlertsSent != 0 {
		t.Errorf("AlertsSent = %d, want 0", summary.AlertsSent)
	}
}

func TestRunCycleManyDevices(t *testing.T) {
	var devices []string
	for i := 0; i < 32; i++ {
		devices = append(devices, fmt.Sprintf("/dev/disk%d", i))
	}
	diag := healthyDiag(devices...)
	m := New(diag, &fakeSource{}, nil, time.Hour)

	summary, err := m.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if diag.runCounter != len(devices) {
		t.Errorf("diagnostic ran %d times, want %d", diag.runCounter, len(devices))
	}
	if len(summary.Assessments) < len(devices) {
		t.Errorf("assessments=%d, want at least %d", len(summary.Assessments), len(devices))
	}
}
