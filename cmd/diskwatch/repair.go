package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/diskwatch/diskwatch/internal/config"
	"github.com/diskwatch/diskwatch/internal/logging"
	"github.com/diskwatch/diskwatch/internal/metrics"
	"github.com/diskwatch/diskwatch/internal/models"
	"github.com/diskwatch/diskwatch/internal/repair"
	"github.com/diskwatch/diskwatch/internal/smart"
)

var (
	repairYes        bool
	repairMountPoint string
)

var repairCmd = &cobra.Command{
	Use:   "repair <device>",
	Short: "Unmount, check, and remount a device's filesystem",
	Long: `Runs the repair protocol on a device: unmount, fsck, remount.
Every step requires explicit operator confirmation and no step is retried
automatically. A filesystem the checker declares unrecoverable is left
unmounted for manual inspection.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runRepair(args[0]))
	},
}

func init() {
	repairCmd.Flags().BoolVarP(&repairYes, "yes", "y", false, "skip the interactive confirmation prompt")
	repairCmd.Flags().StringVar(&repairMountPoint, "mount-point", "", "mount point to unmount and restore (default: resolved from the mount table)")
}

func runRepair(device string) int {
	cfg, err := loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return exitInternal
	}
	defer logging.Shutdown()

	ctx := context.Background()
	tools := repair.NewSystemTools(cfg.CommandTimeout())
	sequencer := repair.NewSequencer(tools)

	targets, err := repairTargets(ctx, cfg, device)
	if err != nil {
		log.Error().Err(err).Str("device", device).Msg("Failed to resolve repair targets")
		return exitInternal
	}

	failed := false
	for _, target := range targets {
		if !confirmRepair(target) {
			fmt.Printf("Skipping repair on %s.\n", target.Device)
			continue
		}
		if !repairOne(ctx, sequencer, target) {
			failed = true
		}
	}

	if failed {
		return exitFindings
	}
	return exitOK
}

// repairTargets expands a disk into its partitions, carrying each one's
// current mount point. A device with no partitions is repaired directly.
func repairTargets(ctx context.Context, cfg *config.Settings, device string) ([]models.RepairPlan, error) {
	collector := smart.NewCollector(cfg.CommandTimeout(), nil, nil)

	candidates := []string{device}
	if repairMountPoint == "" {
		partitions, err := collector.ListPartitions(ctx, device)
		if err != nil {
			return nil, err
		}
		if len(partitions) > 0 {
			candidates = partitions
		}
	}

	var targets []models.RepairPlan
	for _, candidate := range candidates {
		mountPoint := repairMountPoint
		if mountPoint == "" {
			mp, err := repair.MountPointOf(ctx, candidate)
			if err != nil {
				return nil, err
			}
			mountPoint = mp
		}
		targets = append(targets, models.RepairPlan{Device: candidate, MountPoint: mountPoint})
	}
	return targets, nil
}

func confirmRepair(plan models.RepairPlan) bool {
	if repairYes {
		return true
	}

	state := "unmounted"
	if plan.MountPoint != "" {
		state = "mounted at " + plan.MountPoint
	}
	fmt.Printf("Device %s is %s.\n", plan.Device, state)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("Run filesystem repair on %s? (yes/no): ", plan.Device)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		default:
			fmt.Println("Please answer 'yes' or 'no'.")
		}
	}
}

// repairOne runs either the full unmount/check/remount sequence, or a bare
// consistency check when the target is not mounted (nothing to unmount or
// restore in that case). Both paths go through the sequencer so per-device
// exclusivity holds either way.
func repairOne(ctx context.Context, sequencer *repair.Sequencer, plan models.RepairPlan) bool {
	if plan.MountPoint == "" {
		outcome, err := sequencer.CheckOnly(ctx, plan.Device, true)
		recordRepairOutcome(err == nil && outcome != repair.CheckUnrecoverable)
		if err != nil {
			fmt.Printf("Filesystem check on %s failed: %v\n", plan.Device, err)
			return false
		}
		if outcome == repair.CheckUnrecoverable {
			fmt.Printf("Filesystem on %s has unrecoverable errors, inspect manually.\n", plan.Device)
			return false
		}
		fmt.Printf("Filesystem on %s is %s.\n", plan.Device, outcome)
		return true
	}

	result, err := sequencer.Run(ctx, plan, true)
	recordRepairOutcome(!result.Failed && err == nil)
	if err != nil {
		fmt.Printf("Repair of %s failed at stage %s: %v\n", plan.Device, result.FinalStage, err)
		if !result.Mounted {
			fmt.Printf("%s was left unmounted, remount manually once resolved.\n", plan.Device)
		}
		return false
	}

	fmt.Printf("Repair of %s completed (check result: %s), filesystem remounted at %s.\n",
		plan.Device, result.CheckResult, plan.MountPoint)
	return true
}

func recordRepairOutcome(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "done"
	}
	metrics.RepairAttempts.WithLabelValues(outcome).Inc()
}
