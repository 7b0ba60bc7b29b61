package domain

import "context"

// FileInfo describes one eligible document in the knowledge base.
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
}

// SearchResult is one match returned by a knowledge base search.
type SearchResult struct {
	Filename string `json:"filename"`
	Snippet  string `json:"snippet"`
}

// KnowledgeStore is the read-only document store the tools delegate to.
// Implementations restrict eligibility to an extension allow-list and
// reject any path outside the configured root.
type KnowledgeStore interface {
	List(ctx context.Context) ([]FileInfo, error)
	Read(ctx context.Context, filename string) (string, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
