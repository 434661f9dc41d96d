package smart

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

var (
	execLookPath            = exec.LookPath
	defaultRunCommandOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
)

// Collector enumerates block devices and runs smartctl against them. It is
// the production implementation of the orchestrator's diagnostic capability.
type Collector struct {
	run     commandRunner
	timeout time.Duration
	include []string
	exclude []string
}

// NewCollector creates a collector. timeout bounds each tool invocation;
// include pins the device set (empty means enumerate via lsblk) and exclude
// holds device patterns to skip, both from the devices config section.
func NewCollector(timeout time.Duration, include, exclude []string) *Collector {
	return &Collector{
		run:     defaultRunCommandOutput,
		timeout: timeout,
		include: include,
		exclude: exclude,
	}
}

// ListDevices returns the block devices eligible for a SMART scan.
func (c *Collector) ListDevices(ctx context.Context) ([]string, error) {
	if len(c.include) > 0 {
		var devices []string
		for _, device := range c.include {
			device = strings.TrimSpace(device)
			if device == "" {
				continue
			}
			if !strings.HasPrefix(device, "/dev/") {
				device = "/dev/" + device
			}
			devices = append(devices, device)
		}
		return devices, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(ctx, "lsblk", "-d", "-n", "-o", "NAME,TYPE")
	if err != nil {
		return nil, dwerrors.WrapToolError("list_devices", "", err)
	}

	var devices []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, devType := fields[0], fields[1]
		if devType != "disk" {
			continue
		}
		path := "/dev/" + name
		if matchesDeviceExclude(name, path, c.exclude) {
			log.Debug().Str("device", path).Msg("Device excluded from scan")
			continue
		}
		devices = append(devices, path)
	}

	return devices, nil
}

// ListPartitions returns the partitions of a disk, e.g. /dev/sda1 for
// /dev/sda. Used by the repair command to offer per-partition repair the way
// the operator expects.
func (c *Collector) ListPartitions(ctx context.Context, device string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(ctx, "lsblk", "-ln", "-o", "NAME,TYPE", device)
	if err != nil {
		return nil, dwerrors.WrapToolError("list_partitions", device, err)
	}

	var partitions []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "part" {
			partitions = append(partitions, "/dev/"+fields[0])
		}
	}

	return partitions, nil
}

// Run invokes smartctl against a single device and returns the exit status
// and raw output for the parser. A missing smartctl binary is surfaced as a
// tool error so the cycle can report it per device without aborting.
func (c *Collector) Run(ctx context.Context, device string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	smartctlPath, err := execLookPath("smartctl")
	if err != nil {
		return 0, nil, dwerrors.WrapToolError("run_smartctl", device, err)
	}

	output, err := c.run(ctx, smartctlPath, "-H", "-A", device)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is normal for failing disks; the parser owns
			// the interpretation of the bitmask.
			return exitErr.ExitCode(), output, nil
		}
		return 0, nil, dwerrors.WrapToolError("run_smartctl", device, err)
	}

	return 0, output, nil
}

// matchesDeviceExclude checks a device against exclusion patterns. Patterns
// match the short name or the full path and support * as prefix/suffix
// wildcard.
func matchesDeviceExclude(deviceName, devicePath string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if matchPattern(deviceName, pattern) || matchPattern(devicePath, pattern) {
			return true
		}
	}
	return false
}

func matchPattern(value, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(value, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(value, strings.TrimPrefix(pattern, "*"))
	default:
		return value == pattern
	}
}
