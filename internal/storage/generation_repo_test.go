package storage

import (
	"context"
	"testing"
)

func TestGenerationRepo_BeginCompleteLatest(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewGenerationRepo(db)

	// No completed builds yet
	if _, err := repo.Latest(context.Background()); err != ErrNotFound {
		t.Errorf("Latest() on empty table error = %v, want ErrNotFound", err)
	}

	gen1, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if gen1 == 0 {
		t.Error("Begin() should assign an id")
	}

	// A building generation is not visible as latest
	if _, err := repo.Latest(context.Background()); err != ErrNotFound {
		t.Errorf("Latest() with building generation error = %v, want ErrNotFound", err)
	}

	if err := repo.Complete(context.Background(), gen1, 3, 120, 450); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	latest, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != gen1 || latest.Status != GenerationReady {
		t.Errorf("Latest() = %+v", latest)
	}
	if latest.Documents != 3 || latest.Nodes != 120 || latest.Chunks != 450 {
		t.Errorf("Latest() counts = %d/%d/%d, want 3/120/450", latest.Documents, latest.Nodes, latest.Chunks)
	}
	if latest.StartedAt.IsZero() || latest.CompletedAt.IsZero() {
		t.Error("timestamps should be set after Complete()")
	}

	// A newer build only becomes latest once it completes
	gen2, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	latest, err = repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != gen1 {
		t.Errorf("Latest() = %d, want %d while the new build is running", latest.ID, gen1)
	}

	if err := repo.Complete(context.Background(), gen2, 3, 121, 452); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	latest, err = repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != gen2 {
		t.Errorf("Latest() = %d, want %d", latest.ID, gen2)
	}
}

func TestGenerationRepo_Fail(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewGenerationRepo(db)

	gen, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := repo.Fail(context.Background(), gen); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	if _, err := repo.Latest(context.Background()); err != ErrNotFound {
		t.Errorf("Latest() after failed build error = %v, want ErrNotFound", err)
	}

	var status string
	if err := db.QueryRow("SELECT status FROM generations WHERE id = ?", gen).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != GenerationFailed {
		t.Errorf("status = %s, want %s", status, GenerationFailed)
	}
}

func TestGenerationRepo_Prune(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	corpusRepo := NewCorpusRepo(db)
	corpus, err := corpusRepo.GetOrCreateByName(context.Background(), "financial", "financial", "/data")
	if err != nil {
		t.Fatalf("GetOrCreateByName() error = %v", err)
	}

	docRepo := NewDocumentRepo(db)
	doc := &DocumentRecord{ID: "doc1", CorpusID: corpus.ID, RelPath: "a.json", DocType: "financial_statement", Hash: "h"}
	if err := docRepo.Upsert(context.Background(), doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	repo := NewGenerationRepo(db)
	chunkRepo := NewChunkRepo(db)

	// Three completed builds, each with one chunk row
	var gens []int64
	for i := 0; i < 3; i++ {
		gen, err := repo.Begin(context.Background())
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		chunk := ChunkRecord{ID: "c1", DocumentID: "doc1", SectionID: "doc1", Kind: "fact", Digest: "d1", Text: "t", Meta: "{}"}
		if err := chunkRepo.InsertBatch(context.Background(), gen, []ChunkRecord{chunk}); err != nil {
			t.Fatalf("InsertBatch() error = %v", err)
		}
		if err := repo.Complete(context.Background(), gen, 1, 0, 1); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		gens = append(gens, gen)
	}

	// Empty keep list must not wipe the table
	deleted, err := repo.Prune(context.Background(), nil)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("Prune(nil) deleted %d generations, want 0", deleted)
	}

	// Keep the two most recent builds
	deleted, err = repo.Prune(context.Background(), []int64{gens[1], gens[2]})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted %d generations, want 1", deleted)
	}

	// The oldest generation's chunks cascade away, the kept ones survive
	if _, err := chunkRepo.GetByID(context.Background(), gens[0], "c1"); err != ErrNotFound {
		t.Errorf("pruned generation chunk error = %v, want ErrNotFound", err)
	}
	for _, gen := range gens[1:] {
		if _, err := chunkRepo.GetByID(context.Background(), gen, "c1"); err != nil {
			t.Errorf("kept generation %d chunk error = %v", gen, err)
		}
	}

	latest, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != gens[2] {
		t.Errorf("Latest() = %d, want %d", latest.ID, gens[2])
	}
}
