package repair

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

// fsck exit status is a bitmask.
const (
	fsckErrorsCorrected = 1 << 0
	fsckRebootNeeded    = 1 << 1
	fsckUncorrected     = 1 << 2
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

var (
	execLookPath             = exec.LookPath
	defaultRunCombinedOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
	diskPartitions = disk.PartitionsWithContext
)

// SystemTools shells out to umount, fsck, and mount. It assumes the process
// runs with enough privilege to manage mounts; that precondition sits on
// this boundary, not inside the sequencer.
type SystemTools struct {
	run     commandRunner
	timeout time.Duration
}

// NewSystemTools creates the production tool set. timeout bounds the umount
// and mount calls; fsck gets ten times that, since a full check legitimately
// takes a while.
func NewSystemTools(timeout time.Duration) *SystemTools {
	return &SystemTools{
		run:     defaultRunCombinedOutput,
		timeout: timeout,
	}
}

// Unmount detaches the filesystem. A busy target is reported as
// ErrDeviceBusy so the sequencer can terminate without partial state.
func (t *SystemTools) Unmount(ctx context.Context, mountPoint string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	output, err := t.run(ctx, "umount", mountPoint)
	if err == nil {
		return nil
	}

	if strings.Contains(strings.ToLower(string(output)), "busy") {
		return fmt.Errorf("%w: %s", dwerrors.ErrDeviceBusy, strings.TrimSpace(string(output)))
	}
	return fmt.Errorf("umount %s: %w: %s", mountPoint, err, strings.TrimSpace(string(output)))
}

// CheckFilesystem runs fsck in auto-repair mode and maps the exit bitmask to
// a check outcome. Uncorrected errors are unrecoverable from the sequencer's
// point of view; corrected errors count as a successful repair.
func (t *SystemTools) CheckFilesystem(ctx context.Context, device string) (CheckResult, error) {
	if _, err := execLookPath("fsck"); err != nil {
		return CheckClean, dwerrors.WrapToolError("check_filesystem", device, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*t.timeout)
	defer cancel()

	output, err := t.run(ctx, "fsck", "-y", device)
	if err == nil {
		return CheckClean, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return CheckClean, dwerrors.WrapToolError("check_filesystem", device, err)
	}

	code := exitErr.ExitCode()
	switch {
	case code&fsckUncorrected != 0:
		return CheckUnrecoverable, nil
	case code&(fsckErrorsCorrected|fsckRebootNeeded) != 0:
		return CheckRepaired, nil
	default:
		return CheckClean, fmt.Errorf("fsck %s exited with status %d: %s",
			device, code, strings.TrimSpace(string(output)))
	}
}

// Mount restores the filesystem at its original mount point.
func (t *SystemTools) Mount(ctx context.Context, device, mountPoint string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	output, err := t.run(ctx, "mount", device, mountPoint)
	if err != nil {
		return fmt.Errorf("%w: mount %s %s: %v: %s",
			dwerrors.ErrMountFailed, device, mountPoint, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// MountPointOf resolves the current mount point of a device from the mount
// table. Returns empty when the device is not mounted.
func MountPointOf(ctx context.Context, device string) (string, error) {
	partitions, err := diskPartitions(ctx, false)
	if err != nil {
		return "", dwerrors.WrapToolError("list_mounts", device, err)
	}
	for _, p := range partitions {
		if p.Device == device {
			return p.Mountpoint, nil
		}
	}
	return "", nil
}
