// Package corpus tracks the document roots the index is built from: one
// root of financial statement records and one root of legal and accounting
// standards.
package corpus

import (
	"context"
	"fmt"
	"path/filepath"

	"auditrag/internal/storage"
)

// Corpus kinds. The kind selects which parser a scanned file goes through.
const (
	KindFinancial = "financial"
	KindStandards = "standards"
)

// Manager manages corpus configuration and provides corpus lookup and path
// resolution.
type Manager struct {
	corpusRepo storage.CorpusStore
	corpora    map[string]storage.CorpusRecord // cached by name
	names      []string                        // registration order, keeps scans deterministic
}

// NewManager creates a new corpus manager and registers the financial and
// standards corpora.
func NewManager(ctx context.Context, corpusRepo storage.CorpusStore, financialPath, standardsPath string) (*Manager, error) {
	m := &Manager{
		corpusRepo: corpusRepo,
		corpora:    make(map[string]storage.CorpusRecord),
	}

	financial, err := corpusRepo.GetOrCreateByName(ctx, KindFinancial, KindFinancial, financialPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus financial: %w", err)
	}
	m.corpora[KindFinancial] = financial
	m.names = append(m.names, KindFinancial)

	standards, err := corpusRepo.GetOrCreateByName(ctx, KindStandards, KindStandards, standardsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus standards: %w", err)
	}
	m.corpora[KindStandards] = standards
	m.names = append(m.names, KindStandards)

	return m, nil
}

// ByName returns the corpus record for the given corpus name.
func (m *Manager) ByName(name string) (storage.CorpusRecord, error) {
	corpus, ok := m.corpora[name]
	if !ok {
		return storage.CorpusRecord{}, fmt.Errorf("corpus not found: %s", name)
	}
	return corpus, nil
}

// AbsPath returns the absolute path for a file given its corpus ID and relative path.
func (m *Manager) AbsPath(corpusID int, relPath string) string {
	for _, corpus := range m.corpora {
		if corpus.ID == corpusID {
			return filepath.Join(corpus.RootPath, relPath)
		}
	}
	// If corpus not found, return empty string (should not happen in practice)
	return ""
}
