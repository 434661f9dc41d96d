// Package repair drives the operator-confirmed unmount, filesystem check,
// and remount protocol for a single device.
package repair

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
	"github.com/diskwatch/diskwatch/internal/models"
)

// Stage identifies a step of the repair protocol.
type Stage int

const (
	StageIdle Stage = iota
	StageUnmounting
	StageChecking
	StageRemounting
	StageDone
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageUnmounting:
		return "unmounting"
	case StageChecking:
		return "checking"
	case StageRemounting:
		return "remounting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of the filesystem consistency check.
type CheckResult int

const (
	CheckClean CheckResult = iota
	CheckRepaired
	CheckUnrecoverable
)

// String returns the check outcome name.
func (c CheckResult) String() string {
	switch c {
	case CheckClean:
		return "clean"
	case CheckRepaired:
		return "repaired"
	case CheckUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Tools are the external unmount/fsck/mount capabilities. The production
// implementation shells out; tests substitute fakes.
type Tools interface {
	Unmount(ctx context.Context, mountPoint string) error
	CheckFilesystem(ctx context.Context, device string) (CheckResult, error)
	Mount(ctx context.Context, device, mountPoint string) error
}

// Result reports where a repair attempt terminated. Exactly one terminal
// state is reached per attempt: Done, or Failed at a specific stage.
type Result struct {
	ID          string
	Device      string
	MountPoint  string
	FinalStage  Stage
	Failed      bool
	CheckResult CheckResult
	// Mounted reports whether the filesystem is mounted when the attempt
	// ends, so the operator knows the state they are left with.
	Mounted bool
	Err     error
}

// Sequencer runs repair plans with per-device mutual exclusion. Interleaved
// unmount/check/mount on the same device race catastrophically, so a second
// concurrent request is rejected outright rather than queued.
type Sequencer struct {
	tools Tools

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewSequencer creates a sequencer over the given tools.
func NewSequencer(tools Tools) *Sequencer {
	return &Sequencer{
		tools:    tools,
		inflight: make(map[string]struct{}),
	}
}

// Run executes one repair attempt. confirmed is the explicit operator
// confirmation token and cannot be bypassed. Cancellation is honored only
// before the first stage starts; once unmounting begins the attempt runs to
// a terminal state, because abandoning a half-repaired filesystem is worse
// than finishing late. No stage is retried.
func (s *Sequencer) Run(ctx context.Context, plan models.RepairPlan, confirmed bool) (Result, error) {
	result := Result{
		ID:         uuid.NewString(),
		Device:     plan.Device,
		MountPoint: plan.MountPoint,
		FinalStage: StageIdle,
		Mounted:    true,
	}

	if !confirmed {
		return result, dwerrors.ErrNotConfirmed
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if !s.acquire(plan.Device) {
		err := dwerrors.NewMonitorError(dwerrors.ErrorTypeConflict, "repair", plan.Device, dwerrors.ErrRepairInProgress)
		return result, err
	}
	defer s.release(plan.Device)

	log.Info().
		Str("repairID", result.ID).
		Str("device", plan.Device).
		Str("mountPoint", plan.MountPoint).
		Msg("Starting repair sequence")

	// Detach from the caller's cancellation: the sequence must reach a
	// terminal state once started.
	runCtx := context.WithoutCancel(ctx)

	return s.runStages(runCtx, plan, result)
}

func (s *Sequencer) runStages(ctx context.Context, plan models.RepairPlan, result Result) (Result, error) {
	// Unmounting
	result.FinalStage = StageUnmounting
	if err := s.tools.Unmount(ctx, plan.MountPoint); err != nil {
		// Unmount failed, so the filesystem is still mounted and in its
		// original state.
		result.Failed = true
		result.Err = dwerrors.WrapRepairError("repair", plan.Device, StageUnmounting.String(), err)
		log.Error().Err(err).Str("repairID", result.ID).Str("device", plan.Device).
			Msg("Repair failed during unmount, filesystem left mounted")
		return result, result.Err
	}
	result.Mounted = false

	// Checking
	result.FinalStage = StageChecking
	checkResult, err := s.tools.CheckFilesystem(ctx, plan.Device)
	result.CheckResult = checkResult
	if err != nil {
		result.Failed = true
		result.Err = dwerrors.WrapRepairError("repair", plan.Device, StageChecking.String(), err)
		log.Error().Err(err).Str("repairID", result.ID).Str("device", plan.Device).
			Msg("Repair failed during filesystem check, device left unmounted")
		return result, result.Err
	}
	if checkResult == CheckUnrecoverable {
		// Never remount a filesystem the checker declared unrecoverable.
		result.Failed = true
		result.Err = dwerrors.WrapRepairError("repair", plan.Device, StageChecking.String(), dwerrors.ErrCheckFailed)
		log.Error().Str("repairID", result.ID).Str("device", plan.Device).
			Msg("Filesystem check reported unrecoverable errors, device deliberately left unmounted")
		return result, result.Err
	}
	if checkResult == CheckRepaired {
		log.Info().Str("repairID", result.ID).Str("device", plan.Device).
			Msg("Filesystem check repaired errors, continuing to remount")
	}

	// Remounting
	result.FinalStage = StageRemounting
	if err := s.tools.Mount(ctx, plan.Device, plan.MountPoint); err != nil {
		// The filesystem itself may be sound; only the mount step failed.
		result.Failed = true
		result.Err = dwerrors.WrapRepairError("repair", plan.Device, StageRemounting.String(), err)
		log.Error().Err(err).Str("repairID", result.ID).Str("device", plan.Device).
			Msg("Remount failed after successful check, operator must remount manually")
		return result, result.Err
	}
	result.Mounted = true

	result.FinalStage = StageDone
	log.Info().
		Str("repairID", result.ID).
		Str("device", plan.Device).
		Str("check", checkResult.String()).
		Msg("Repair sequence completed")
	return result, nil
}

// CheckOnly runs just the filesystem check, for a target that is not mounted
// (nothing to unmount or restore). It holds the same per-device exclusivity
// as a full sequence and likewise runs to completion once started.
func (s *Sequencer) CheckOnly(ctx context.Context, device string, confirmed bool) (CheckResult, error) {
	if !confirmed {
		return CheckClean, dwerrors.ErrNotConfirmed
	}

	if err := ctx.Err(); err != nil {
		return CheckClean, err
	}

	if !s.acquire(device) {
		return CheckClean, dwerrors.NewMonitorError(dwerrors.ErrorTypeConflict, "repair", device, dwerrors.ErrRepairInProgress)
	}
	defer s.release(device)

	log.Info().Str("device", device).Msg("Starting standalone filesystem check")

	return s.tools.CheckFilesystem(context.WithoutCancel(ctx), device)
}

// InProgress reports whether a repair is currently running for a device.
func (s *Sequencer) InProgress(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[device]
	return ok
}

func (s *Sequencer) acquire(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[device]; ok {
		return false
	}
	s.inflight[device] = struct{}{}
	return true
}

func (s *Sequencer) release(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, device)
}
