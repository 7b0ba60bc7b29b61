package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"qna-agent/internal/domain"
)

// The three knowledge-base tools advertised to the LLM. Each is a thin
// adapter from function-calling arguments to the KnowledgeStore; all are
// read-only.

// SearchTool finds knowledge files matching a query.
type SearchTool struct {
	store domain.KnowledgeStore
}

// NewSearchTool creates the search_knowledge_base tool.
func NewSearchTool(store domain.KnowledgeStore) *SearchTool {
	return &SearchTool{store: store}
}

func (t *SearchTool) Name() string { return "search_knowledge_base" }

func (t *SearchTool) Description() string {
	return "Search the knowledge base for files whose content or name matches a query. Returns matching filenames with content snippets."
}

func (t *SearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Text to search for, case-insensitive"
				}
			},
			"required": ["query"]
		}`),
	}
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, domain.NewDomainError("SearchTool.Execute", domain.ErrInvalidInput, err.Error())
	}
	if args.Query == "" {
		return nil, domain.NewDomainError("SearchTool.Execute", domain.ErrInvalidInput, "query is required")
	}

	results, err := t.store.Search(ctx, args.Query)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	content, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}
	return &domain.ToolResult{Content: string(content)}, nil
}

// ListTool enumerates the knowledge base files.
type ListTool struct {
	store domain.KnowledgeStore
}

// NewListTool creates the list_knowledge_files tool.
func NewListTool(store domain.KnowledgeStore) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "list_knowledge_files" }

func (t *ListTool) Description() string {
	return "List every file available in the knowledge base with its size and type."
}

func (t *ListTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

func (t *ListTool) Execute(ctx context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	files, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge files: %w", err)
	}
	if files == nil {
		files = []domain.FileInfo{}
	}

	content, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode file list: %w", err)
	}
	return &domain.ToolResult{Content: string(content)}, nil
}

// ReadTool returns the full content of one knowledge file.
type ReadTool struct {
	store domain.KnowledgeStore
}

// NewReadTool creates the read_knowledge_file tool.
func NewReadTool(store domain.KnowledgeStore) *ReadTool {
	return &ReadTool{store: store}
}

func (t *ReadTool) Name() string { return "read_knowledge_file" }

func (t *ReadTool) Description() string {
	return "Read the full content of a single knowledge base file by its filename."
}

func (t *ReadTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filename": {
					"type": "string",
					"description": "Filename as returned by list_knowledge_files or search_knowledge_base"
				}
			},
			"required": ["filename"]
		}`),
	}
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, domain.NewDomainError("ReadTool.Execute", domain.ErrInvalidInput, err.Error())
	}
	if args.Filename == "" {
		return nil, domain.NewDomainError("ReadTool.Execute", domain.ErrInvalidInput, "filename is required")
	}

	content, err := t.store.Read(ctx, args.Filename)
	if err != nil {
		return nil, err
	}
	return &domain.ToolResult{Content: content}, nil
}

// RegisterKnowledgeTools registers the three knowledge-base tools.
func RegisterKnowledgeTools(r *Registry, store domain.KnowledgeStore) error {
	for _, t := range []domain.Tool{
		NewSearchTool(store),
		NewListTool(store),
		NewReadTool(store),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
