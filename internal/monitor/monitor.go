// Package monitor orchestrates one scan cycle: enumerate devices, collect
// SMART verdicts and log events concurrently, assess, and dispatch alerts.
package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/diskwatch/diskwatch/internal/alerting"
	"github.com/diskwatch/diskwatch/internal/health"
	"github.com/diskwatch/diskwatch/internal/logscan"
	"github.com/diskwatch/diskwatch/internal/metrics"
	"github.com/diskwatch/diskwatch/internal/models"
	"github.com/diskwatch/diskwatch/internal/smart"
)

// UnattributedDevice keys log events that carried no device token. They are
// still surfaced: an I/O error report is informative even unattributed.
const UnattributedDevice = "unknown"

// Diagnostic is the external diagnostic capability: enumerate devices and
// run the SMART query for one of them.
type Diagnostic interface {
	ListDevices(ctx context.Context) ([]string, error)
	Run(ctx context.Context, device string) (exitCode int, raw []byte, err error)
}

// DeviceError records a per-device collection failure. One device's tool or
// parser failure never prevents assessment of the others.
type DeviceError struct {
	Device string
	Err    error
}

// Summary is the outcome of one scan cycle, used to derive the process exit
// status.
type Summary struct {
	CycleID         string
	Devices         int
	Healthy         int
	Warnings        int
	Criticals       int
	AlertsAttempted int
	AlertsSent      int
	TransportFailed bool
	DeviceErrors    []DeviceError
	Assessments     []models.Assessment
}

// Findings reports whether any device needs operator attention.
func (s Summary) Findings() bool {
	return s.Warnings > 0 || s.Criticals > 0
}

// Monitor wires the capabilities together for repeated scan cycles.
type Monitor struct {
	diag       Diagnostic
	source     logscan.Source
	dispatcher *alerting.Dispatcher // nil when alerting is disabled
	window     time.Duration
}

// New creates a monitor. dispatcher may be nil to disable alert delivery;
// assessments are still produced and reported.
func New(diag Diagnostic, source logscan.Source, dispatcher *alerting.Dispatcher, window time.Duration) *Monitor {
	return &Monitor{
		diag:       diag,
		source:     source,
		dispatcher: dispatcher,
		window:     window,
	}
}

// RunCycle performs one full scan cycle. Diagnostics run concurrently per
// device; everything is joined before any dispatch, since dedup decisions
// read and write the shared alert-record table.
func (m *Monitor) RunCycle(ctx context.Context) (Summary, error) {
	summary := Summary{CycleID: ulid.Make().String()}
	logger := log.With().Str("cycleID", summary.CycleID).Logger()

	devices, err := m.diag.ListDevices(ctx)
	if err != nil {
		metrics.ScanCycleErrors.Inc()
		return summary, err
	}
	summary.Devices = len(devices)
	logger.Info().Int("devices", len(devices)).Msg("Starting scan cycle")

	since := time.Now().Add(-m.window)

	verdicts := make([]models.Verdict, len(devices))
	verdictErrs := make([]error, len(devices))
	var events []models.LogEvent

	g, gctx := errgroup.WithContext(ctx)
	for i, device := range devices {
		i, device := i, device
		g.Go(func() error {
			exitCode, raw, err := m.diag.Run(gctx, device)
			if err != nil {
				// Surfaced per device; the verdict stays fail-safe
				// unhealthy rather than silently healthy.
				verdictErrs[i] = err
				verdicts[i] = models.Verdict{
					Device: device,
					Raw:    "diskwatch: diagnostic tool failed: " + err.Error(),
				}
				return nil
			}
			verdicts[i] = smart.Assess(device, raw, exitCode)
			return nil
		})
	}
	g.Go(func() error {
		lines, err := m.source.FetchLogs(gctx, since)
		if err != nil {
			// Log scan failure degrades the cycle but does not abort it;
			// SMART verdicts alone are still worth alerting on.
			logger.Warn().Err(err).Msg("Log fetch failed, assessing on SMART data only")
			return nil
		}
		events = logscan.Scan(lines, since)
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.ScanCycleErrors.Inc()
		return summary, err
	}

	for i, device := range devices {
		if verdictErrs[i] != nil {
			logger.Warn().Err(verdictErrs[i]).Str("device", device).Msg("Device diagnostic failed")
			summary.DeviceErrors = append(summary.DeviceErrors, DeviceError{Device: device, Err: verdictErrs[i]})
		}
	}

	summary.Assessments = m.assess(devices, verdicts, events)
	for _, a := range summary.Assessments {
		switch a.Severity {
		case models.SeverityCritical:
			summary.Criticals++
		case models.SeverityWarning:
			summary.Warnings++
		default:
			summary.Healthy++
		}
	}

	m.dispatch(ctx, &summary, logger)

	metrics.ScanCycles.Inc()
	metrics.DevicesBySeverity.WithLabelValues(models.SeverityHealthy.String()).Set(float64(summary.Healthy))
	metrics.DevicesBySeverity.WithLabelValues(models.SeverityWarning.String()).Set(float64(summary.Warnings))
	metrics.DevicesBySeverity.WithLabelValues(models.SeverityCritical.String()).Set(float64(summary.Criticals))

	logger.Info().
		Int("healthy", summary.Healthy).
		Int("warnings", summary.Warnings).
		Int("criticals", summary.Criticals).
		Int("alertsSent", summary.AlertsSent).
		Msg("Scan cycle complete")

	return summary, nil
}

// assess merges verdicts and grouped events into per-device assessments.
// Devices seen only in the log (or not at all) still get an assessment so
// their events are surfaced; those use a synthetic passed verdict because
// severity for them derives from the events alone.
func (m *Monitor) assess(devices []string, verdicts []models.Verdict, events []models.LogEvent) []models.Assessment {
	grouped := make(map[string][]models.LogEvent)
	for _, event := range events {
		key := event.Device
		if key == "" {
			key = UnattributedDevice
		}
		grouped[key] = append(grouped[key], event)
	}

	var assessments []models.Assessment
	scanned := make(map[string]bool, len(devices))
	for i, device := range devices {
		scanned[device] = true
		assessments = append(assessments, health.Assess(device, verdicts[i], grouped[device]))
	}

	var extra []string
	for device := range grouped {
		if !scanned[device] {
			extra = append(extra, device)
		}
	}
	sort.Strings(extra)
	for _, device := range extra {
		verdict := models.Verdict{
			Device: device,
			Passed: true,
			Raw:    "diskwatch: no SMART data for this device, severity derived from log events only",
		}
		assessments = append(assessments, health.Assess(device, verdict, grouped[device]))
	}

	return assessments
}

// dispatch runs the alert policy serially over the joined assessments.
// Cancellation between dispatches is safe: records are committed only after
// a successful send.
func (m *Monitor) dispatch(ctx context.Context, summary *Summary, logger zerolog.Logger) {
	if m.dispatcher == nil {
		if summary.Findings() {
			logger.Warn().Msg("Findings present but alerting is disabled")
		}
		return
	}

	now := time.Now()
	for _, assessment := range summary.Assessments {
		if ctx.Err() != nil {
			logger.Warn().Msg("Scan cycle cancelled before dispatch completed")
			return
		}
		attempted, err := m.dispatcher.Dispatch(ctx, assessment, now)
		if !attempted {
			continue
		}
		summary.AlertsAttempted++
		if err != nil {
			summary.TransportFailed = true
			metrics.AlertSendFailures.Inc()
			logger.Error().Err(err).Str("device", assessment.Device).
				Msg("Alert delivery failed after retry")
			continue
		}
		summary.AlertsSent++
		metrics.AlertsSent.Inc()
	}
}
