package storage

import "time"

// CorpusRecord represents one configured document root in the database.
type CorpusRecord struct {
	ID        int
	Name      string
	Kind      string // "financial" or "standards"
	RootPath  string
	CreatedAt time.Time
}

// DocumentRecord represents one source file in the database. The id is
// deterministic (derived from the parsed record), so a moved file keeps
// its identity.
type DocumentRecord struct {
	ID            string
	CorpusID      int // Foreign key to corpora.id
	RelPath       string
	DocType       string // "financial_statement", "legal_code" or "standard"
	Company       string
	StatementType string
	FiscalYear    int
	Title         string
	Hash          string // BLAKE2b hex string of file content
	UpdatedAt     time.Time
}

// NodeRecord represents one hierarchy node row of a build generation.
type NodeRecord struct {
	Generation  int64
	ID          string
	DocumentID  string
	DisplayName string
	ParentID    string // empty for roots
	Level       int
	IsTotal     bool
	IsSubtotal  bool
	Aliases     []string // stored as a JSON array
}

// ValueRecord represents one fact value row of a build generation.
type ValueRecord struct {
	Generation int64
	NodeID     string
	FiscalYear int
	PeriodType string
	Value      float64
	Text       string // set instead of Value for non-numeric disclosures
	Unit       string
	Derived    bool
}

// ChunkRecord represents one retrieval chunk row of a build generation.
type ChunkRecord struct {
	Generation int64
	ID         string // 16-hex digest prefix
	DocumentID string
	SectionID  string
	Kind       string // fact, clause or section
	Digest     string // full digest, basis of the vector point id
	Text       string
	Meta       string // metadata JSON, mirrors the vector payload
}

// GenerationRecord represents one offline index build in the database.
type GenerationRecord struct {
	ID          int64
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time // zero until the build completes
	Documents   int
	Nodes       int
	Chunks      int
}
