package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/search"
)

var (
	searchToolName    = "vectorize_search"
	searchDescription = "Run hybrid (semantic + lexical) search against a vectorize job. Returns the most relevant rows for the query text, fused by reciprocal rank."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Job     string `json:"job" jsonschema:"the name of the job to search"`
	Query   string `json:"query" jsonschema:"the search query text"`
	Limit   int    `json:"limit,omitempty" jsonschema:"number of results to return (default: 5)"`
	Filters []SearchFilter `json:"filters,omitempty" jsonschema:"optional column filters applied to both scans"`
}

// SearchFilter mirrors pkg/search.Filter for the tool's JSON schema.
type SearchFilter struct {
	Column string `json:"column" jsonschema:"the source column to filter on"`
	Op     string `json:"op" jsonschema:"one of =, <, <=, >, >=, !=, IN"`
	Value  any    `json:"value" jsonschema:"the value to compare against"`
}

// SearchResult represents a single fused search result.
type SearchResult struct {
	PK              string          `json:"pk"`
	Columns         json.RawMessage `json:"columns"`
	SimilarityScore float64         `json:"similarity_score"`
	SemanticRank    *int            `json:"semantic_rank,omitempty"`
	FTSRank         *int            `json:"fts_rank,omitempty"`
	RRFScore        float64         `json:"rrf_score"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Job     string         `json:"job"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}

	logger.Debug("MCP search request",
		zap.String("job", input.Job),
		zap.String("query", input.Query),
		zap.Int("limit", limit),
	)

	filters := make([]search.Filter, 0, len(input.Filters))
	for _, f := range input.Filters {
		filters = append(filters, search.Filter{Column: f.Column, Op: search.Op(f.Op), Value: f.Value})
	}

	rows, err := s.config.Engine.Search(ctx, search.Request{
		JobName:   input.Job,
		QueryText: input.Query,
		Limit:     limit,
		Filters:   filters,
	})
	if err != nil {
		logger.Error("search failed", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("search failed: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	results := make([]SearchResult, len(rows))
	for i, r := range rows {
		results[i] = SearchResult{
			PK:              r.PK,
			Columns:         r.Columns,
			SimilarityScore: r.SimilarityScore,
			SemanticRank:    r.SemanticRank,
			FTSRank:         r.FTSRank,
			RRFScore:        r.RRFScore,
		}
	}

	output := SearchOutput{
		Query:   input.Query,
		Job:     input.Job,
		Results: results,
		Count:   len(results),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("failed to serialize results: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
