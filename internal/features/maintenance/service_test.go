package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"civic-os/internal/config"
	"civic-os/internal/features/importer"
)

type fakeRepo struct {
	deleted    int64
	lastCutoff time.Time
}

func (f *fakeRepo) Create(ctx context.Context, job *importer.ImportJob) error  { return nil }
func (f *fakeRepo) Get(ctx context.Context, id string) (*importer.ImportJob, error) {
	return nil, nil
}
func (f *fakeRepo) Update(ctx context.Context, job *importer.ImportJob) error { return nil }
func (f *fakeRepo) FindByUserID(ctx context.Context, userID string, limit int) ([]importer.ImportJob, error) {
	return nil, nil
}
func (f *fakeRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	return f.deleted, nil
}

type fakePurger struct {
	released   int
	lastCutoff time.Time
}

func (f *fakePurger) PurgeSessions(cutoff time.Time) int {
	f.lastCutoff = cutoff
	return f.released
}

func TestPurgeRemovesStaleUploads(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "old_upload.csv")
	if err := os.WriteFile(stale, []byte("a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-100 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(dir, "fresh_upload.csv")
	if err := os.WriteFile(fresh, []byte("a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	repo := &fakeRepo{deleted: 2}
	purger := &fakePurger{released: 3}
	svc := NewMaintenanceService(repo, purger, &config.Config{FSPath: dir, JobRetentionHrs: 72}, zap.NewNop())

	if err := svc.Purge(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale upload should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh upload should have been kept")
	}

	wantCutoff := time.Now().Add(-72 * time.Hour)
	if diff := repo.lastCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v not near the retention window", repo.lastCutoff)
	}
	if diff := purger.lastCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("session cutoff %v not near the retention window", purger.lastCutoff)
	}
}

func TestPurgeMissingUploadDir(t *testing.T) {
	svc := NewMaintenanceService(&fakeRepo{}, nil, &config.Config{FSPath: "/nonexistent/dir", JobRetentionHrs: 72}, zap.NewNop())
	if err := svc.Purge(context.Background()); err != nil {
		t.Errorf("missing upload dir should not fail the sweep: %v", err)
	}
}
