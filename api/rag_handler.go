package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/verror"
)

// ragResponse is the wire shape for /api/v1/rag: the fused search
// results plus the completer's synthesized answer over them.
type ragResponse struct {
	Query   string        `json:"query"`
	Job     string        `json:"job"`
	Answer  string        `json:"answer"`
	Results []search.Row `json:"results"`
}

// handleRAG handles POST /api/v1/rag: it runs the same hybrid search as
// /api/v1/search, then hands the result rows to the configured
// Completer to synthesize an answer. Returns 501 if no Completer is
// configured, since the completion step is consumed, not implemented,
// by the core.
func (s *Server) handleRAG(c *fiber.Ctx) error {
	if s.completer == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(ErrorResponse{
			Error: "no completion provider configured",
		})
	}

	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err))
	}
	limit := 5
	if req.Limit != nil {
		limit = *req.Limit
	}

	rows, err := s.engine.Search(c.Context(), search.Request{
		JobName:       req.Job,
		QueryText:     req.Query,
		Limit:         limit,
		WindowSize:    req.WindowSize,
		RRFK:          req.RRFK,
		SemanticWt:    req.SemanticWt,
		FTSWt:         req.FTSWt,
		Filters:       req.Filters,
		ReturnColumns: req.ReturnColumns,
	})
	if err != nil {
		return writeError(c, err)
	}

	answer, err := s.completer.Complete(c.Context(), req.Query, rows)
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %v", verror.ErrInternal, err))
	}

	return c.JSON(ragResponse{
		Query:   req.Query,
		Job:     req.Job,
		Answer:  answer,
		Results: rows,
	})
}
