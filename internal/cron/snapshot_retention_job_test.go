package cron

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/snapshots"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

type fakePruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func newSnapshotRetentionJob(t *testing.T, pruner snapshotPruner, retention time.Duration) *snapshotRetentionJob {
	t.Helper()
	jobIface, err := NewSnapshotRetentionJob(SnapshotRetentionJobParams{
		Logger:    logger.Nop(),
		Snapshots: pruner,
		Retention: retention,
	})
	if err != nil {
		t.Fatalf("NewSnapshotRetentionJob: %v", err)
	}
	job, ok := jobIface.(*snapshotRetentionJob)
	if !ok {
		t.Fatalf("expected snapshotRetentionJob, got %T", jobIface)
	}
	return job
}

func TestSnapshotRetentionJobUsesDefaultWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := newSnapshotRetentionJob(t, pruner, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultSnapshotRetention); !pruner.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, pruner.cutoff)
	}
	if pruner.calls != 1 {
		t.Fatalf("expected one prune, got %d", pruner.calls)
	}
}

func TestSnapshotRetentionJobPropagatesError(t *testing.T) {
	job := newSnapshotRetentionJob(t, &fakePruner{err: errors.New("boom")}, time.Hour)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotRetentionJobRequiresRepository(t *testing.T) {
	if _, err := NewSnapshotRetentionJob(SnapshotRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without repository")
	}
}

func TestSnapshotRetentionJobPrunesSQLiteRows(t *testing.T) {
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{SQLitePath: filepath.Join(t.TempDir(), "cron.db")}, true, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := migrate.Up(ctx, nil, client); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo, err := snapshots.NewRepository(client.DB())
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	if err := repo.Set(ctx, "ecomm-cart:old", `{"items":[]}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	job := newSnapshotRetentionJob(t, repo, time.Hour)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := repo.Get(ctx, "ecomm-cart:old"); err == nil {
		t.Fatal("expected stale snapshot to be pruned")
	}
}
