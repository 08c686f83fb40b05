package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"medreport/internal/config"
	"medreport/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestAnalysisRepositorySaveGetList(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	repo := NewAnalysisRepository(db, "sqlite3")
	ctx := context.Background()

	rec := models.NewRecord()
	rec.Set("summary", models.Text("ok"))
	rec.Set("conditions", models.List("flu"))

	older := &models.Analysis{
		Filename:    "old.pdf",
		MimeType:    "application/pdf",
		ModelChoice: "online",
		Medical:     true,
		Record:      rec,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Save(ctx, older); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if older.ID == "" {
		t.Fatalf("expected generated id")
	}
	newer := &models.Analysis{Filename: "new.png", MimeType: "image/png", ModelChoice: "local", Record: rec}
	if err := repo.Save(ctx, newer); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Filename != "old.pdf" || !got.Medical || !got.Record.Equal(rec) {
		t.Fatalf("unexpected analysis %+v record=%s", got, got.Record.String())
	}

	list, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	if got := rebind("pgx", q); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("got %q", got)
	}
	if got := rebind("sqlite3", q); got != q {
		t.Fatalf("got %q", got)
	}
}
