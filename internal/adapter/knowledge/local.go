package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"qna-agent/internal/domain"
)

// allowedExtensions is the set of file types served from the knowledge base.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// snippetContext is how many characters of context surround a search match.
const snippetContext = 100

// fallbackSnippetLen is the snippet length when only the filename matches.
const fallbackSnippetLen = 200

// LocalStore implements domain.KnowledgeStore over a directory tree.
// Only files with allow-listed extensions are visible; everything else is
// treated as if it does not exist.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates a store rooted at path. The directory is created if
// it does not exist.
func NewLocalStore(path string, logger *slog.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve knowledge root: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create knowledge root: %w", err)
	}
	return &LocalStore{root: abs, logger: logger}, nil
}

// List returns every allow-listed file under the root, sorted by filename.
func (s *LocalStore) List(ctx context.Context) ([]domain.FileInfo, error) {
	var files []domain.FileInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !allowedExtensions[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.FileInfo{
			Filename:  filepath.ToSlash(rel),
			Size:      info.Size(),
			Extension: ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list knowledge files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// Read returns the content of a knowledge file. Missing files and
// disallowed extensions surface as not-found; paths resolving outside the
// root are rejected with ErrPathOutsideRoot.
func (s *LocalStore) Read(ctx context.Context, filename string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	path, err := s.resolve(filename)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.NewDomainError("KnowledgeStore.Read", domain.ErrFileNotFound, filename)
		}
		return "", fmt.Errorf("read knowledge file %q: %w", filename, err)
	}
	return string(data), nil
}

// Search scans every allow-listed file for a case-insensitive substring
// match in its content or filename, returning one snippet per matching file.
func (s *LocalStore) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	files, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []domain.SearchResult

	for _, f := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		content, err := s.Read(ctx, f.Filename)
		if err != nil {
			s.logger.Warn("skipping unreadable knowledge file",
				"filename", f.Filename, "error", err)
			continue
		}

		if idx := strings.Index(strings.ToLower(content), needle); idx >= 0 {
			results = append(results, domain.SearchResult{
				Filename: f.Filename,
				Snippet:  makeSnippet(content, idx, len(query)),
			})
		} else if strings.Contains(strings.ToLower(f.Filename), needle) {
			snippet := content
			if len(snippet) > fallbackSnippetLen {
				snippet = snippet[:fallbackSnippetLen]
			}
			results = append(results, domain.SearchResult{
				Filename: f.Filename,
				Snippet:  snippet,
			})
		}
	}

	return results, nil
}

// resolve maps a user-supplied filename to an absolute path under the root.
func (s *LocalStore) resolve(filename string) (string, error) {
	const op = "KnowledgeStore.Read"

	if filename == "" {
		return "", domain.NewDomainError(op, domain.ErrFileNotFound, filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", domain.NewDomainError(op, domain.ErrFileNotFound, filename)
	}

	path := filepath.Join(s.root, filepath.FromSlash(filename))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.NewDomainError(op, domain.ErrPathOutsideRoot, filename)
	}
	return path, nil
}

// makeSnippet extracts the match with surrounding context, marking trimmed
// edges with ellipses.
func makeSnippet(content string, idx, matchLen int) string {
	start := idx - snippetContext
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetContext
	if end > len(content) {
		end = len(content)
	}

	snippet := content[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet = snippet + "..."
	}
	return snippet
}
