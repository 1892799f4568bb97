package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// ===== Test Helpers =====

func setupTestDB(t *testing.T, path string) *Database {
	t.Helper()
	database, err := New(Config{PersistPath: path, LoadOnStart: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return database
}

// ===== Settings Tests =====

func TestSettings(t *testing.T) {
	database := setupTestDB(t, "")
	defer database.Shutdown()

	if _, err := database.GetSetting(SettingPokyPath); err != sql.ErrNoRows {
		t.Errorf("missing setting error = %v, want sql.ErrNoRows", err)
	}

	if err := database.SetSetting(SettingPokyPath, "/work/poky"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if err := database.SetSetting(SettingPokyPath, "/srv/poky"); err != nil {
		t.Fatalf("SetSetting() update error = %v", err)
	}

	got, err := database.GetSetting(SettingPokyPath)
	if err != nil || got != "/srv/poky" {
		t.Errorf("GetSetting() = %q, %v", got, err)
	}

	all, err := database.GetAllSettings()
	if err != nil || len(all) != 1 {
		t.Errorf("GetAllSettings() = %v, %v", all, err)
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "yfab.db")

	first := setupTestDB(t, path)
	if err := first.SetSetting(SettingJWTSecret, "abc"); err != nil {
		t.Fatal(err)
	}
	repo := NewOperationRepository(first)
	if err := repo.Create(&OperationRecord{ID: "op-1", Kind: "build", Target: "core-image-base"}); err != nil {
		t.Fatal(err)
	}
	if err := first.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	// Shutdown is idempotent
	if err := first.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	second := setupTestDB(t, path)
	defer second.Shutdown()

	if got, err := second.GetSetting(SettingJWTSecret); err != nil || got != "abc" {
		t.Errorf("restored setting = %q, %v", got, err)
	}
	op, err := NewOperationRepository(second).GetByID("op-1")
	if err != nil || op == nil || op.Target != "core-image-base" {
		t.Errorf("restored operation = %+v, %v", op, err)
	}
}

func TestNoLoadOnStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yfab.db")
	first := setupTestDB(t, path)
	first.SetSetting("k", "v")
	first.Shutdown()

	fresh, err := New(Config{PersistPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Shutdown()
	if _, err := fresh.GetSetting("k"); err != sql.ErrNoRows {
		t.Errorf("expected empty database, got err = %v", err)
	}
}

// ===== Operation Repository Tests =====

func TestOperationRepository_Lifecycle(t *testing.T) {
	database := setupTestDB(t, "")
	defer database.Shutdown()
	repo := NewOperationRepository(database)

	op := &OperationRecord{Kind: "flash", Target: "/dev/sdb"}
	if err := repo.Create(op); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if op.ID == "" || op.Status != "running" || op.StartedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", op)
	}

	got, err := repo.GetByID(op.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if got.FinishedAt != nil || got.Duration() != 0 {
		t.Errorf("running operation has finish time: %+v", got)
	}

	finished := op.StartedAt.Add(90 * time.Second)
	if err := repo.Finish(op.ID, "failed", 1, "dd: permission denied", finished); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, _ = repo.GetByID(op.ID)
	if got.Status != "failed" || got.ExitCode != 1 || got.ErrorMessage != "dd: permission denied" {
		t.Errorf("finished operation = %+v", got)
	}
	if got.FinishedAt == nil || got.Duration() != 90*time.Second {
		t.Errorf("duration = %v", got.Duration())
	}
}

func TestOperationRepository_NotFound(t *testing.T) {
	database := setupTestDB(t, "")
	defer database.Shutdown()
	repo := NewOperationRepository(database)

	got, err := repo.GetByID("missing")
	if got != nil || err != nil {
		t.Errorf("GetByID() = %v, %v, want nil, nil", got, err)
	}
	if err := repo.Finish("missing", "succeeded", 0, "", time.Now()); err == nil {
		t.Error("Finish() on a missing operation should fail")
	}
}

func TestOperationRepository_List(t *testing.T) {
	database := setupTestDB(t, "")
	defer database.Shutdown()
	repo := NewOperationRepository(database)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, kind := range []string{"build", "flash", "build", "deploy"} {
		op := &OperationRecord{ID: kind + string(rune('a'+i)), Kind: kind, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(op); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filter  OperationFilter
		wantIDs []string
	}{
		{"all newest first", OperationFilter{}, []string{"deployd", "buildc", "flashb", "builda"}},
		{"by kind", OperationFilter{Kind: "build"}, []string{"buildc", "builda"}},
		{"limited", OperationFilter{Limit: 2}, []string{"deployd", "buildc"}},
		{"no match", OperationFilter{Kind: "clean"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := repo.List(tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(ops) != len(tt.wantIDs) {
				t.Fatalf("List() returned %d operations, want %d", len(ops), len(tt.wantIDs))
			}
			for i, op := range ops {
				if op.ID != tt.wantIDs[i] {
					t.Errorf("ops[%d] = %s, want %s", i, op.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestOperationRepository_MarkInterrupted(t *testing.T) {
	database := setupTestDB(t, "")
	defer database.Shutdown()
	repo := NewOperationRepository(database)

	repo.Create(&OperationRecord{ID: "running", Kind: "build"})
	repo.Create(&OperationRecord{ID: "done", Kind: "build"})
	repo.Finish("done", "succeeded", 0, "", time.Now())

	n, err := repo.MarkInterrupted()
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted() = %d, %v", n, err)
	}
	got, _ := repo.GetByID("running")
	if got.Status != "failed" || got.ErrorMessage != "interrupted" {
		t.Errorf("interrupted operation = %+v", got)
	}
	got, _ = repo.GetByID("done")
	if got.Status != "succeeded" {
		t.Errorf("finished operation changed: %+v", got)
	}
}
