package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScannedFile represents a source file found during corpus scanning.
type ScannedFile struct {
	CorpusID int    // Corpus ID from database
	Kind     string // Corpus kind, selects the parser
	RelPath  string // Relative path from corpus root
	AbsPath  string // Absolute file path
}

// ScanAll scans all corpora in registration order and returns the source
// files found. Financial corpora contribute .json records; standards
// corpora contribute .json records and .md documents.
func (m *Manager) ScanAll(ctx context.Context) ([]ScannedFile, error) {
	var scannedFiles []ScannedFile

	for _, name := range m.names {
		corpus := m.corpora[name]

		// Check for context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		err := filepath.Walk(corpus.RootPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return fmt.Errorf("failed to access path %s: %w", path, err)
			}

			if info.IsDir() {
				// Skip hidden directories (editor and VCS clutter)
				if strings.HasPrefix(info.Name(), ".") && path != corpus.RootPath {
					return filepath.SkipDir
				}
				return nil
			}

			if !scannableExt(corpus.Kind, filepath.Ext(path)) {
				return nil
			}

			relPath, err := filepath.Rel(corpus.RootPath, path)
			if err != nil {
				return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
			}

			scannedFiles = append(scannedFiles, ScannedFile{
				CorpusID: corpus.ID,
				Kind:     corpus.Kind,
				RelPath:  filepath.ToSlash(relPath),
				AbsPath:  path,
			})
			return nil
		})
		if err != nil {
			return scannedFiles, fmt.Errorf("failed to scan corpus %s: %w", corpus.Name, err)
		}
	}

	return scannedFiles, nil
}

// scannableExt reports whether a file extension belongs to a corpus kind.
func scannableExt(kind, ext string) bool {
	switch kind {
	case KindFinancial:
		return ext == ".json"
	case KindStandards:
		return ext == ".json" || ext == ".md"
	default:
		return false
	}
}
