package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	snapshotRetentionJobName = "cart-snapshot-retention"
	defaultSnapshotRetention = 30 * 24 * time.Hour
)

type snapshotPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type SnapshotRetentionJobParams struct {
	Logger    *logger.Logger
	Snapshots snapshotPruner
	Retention time.Duration
	Metrics   *metrics.JobMetrics
}

// NewSnapshotRetentionJob deletes cart snapshots that have not been written for
// longer than the retention window.
func NewSnapshotRetentionJob(params SnapshotRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultSnapshotRetention
	}
	return &snapshotRetentionJob{
		logg:      params.Logger,
		snapshots: params.Snapshots,
		retention: retention,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

type snapshotRetentionJob struct {
	logg      *logger.Logger
	snapshots snapshotPruner
	retention time.Duration
	metrics   *metrics.JobMetrics
	now       func() time.Time
}

func (j *snapshotRetentionJob) Name() string { return snapshotRetentionJobName }

func (j *snapshotRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.snapshots.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("snapshot retention: %w", err)
	}
	j.metrics.AddRemoved(snapshotRetentionJobName, deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "cart snapshot retention complete")
	return nil
}
