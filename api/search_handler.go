package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/verror"
)

// searchRequest is the wire shape for both GET query params and a POST
// JSON body on /api/v1/search.
type searchRequest struct {
	Job           string          `json:"job" query:"job"`
	Query         string          `json:"query" query:"query"`
	Limit         *int            `json:"limit" query:"limit"`
	WindowSize    int             `json:"window_size" query:"window_size"`
	RRFK          float64         `json:"rrf_k" query:"rrf_k"`
	SemanticWt    float64         `json:"semantic_weight" query:"semantic_weight"`
	FTSWt         float64         `json:"fts_weight" query:"fts_weight"`
	ReturnColumns []string        `json:"return_columns" query:"return_columns"`
	Filters       []search.Filter `json:"filters"`
}

// handleSearchEndpoint handles GET and POST /api/v1/search. GET carries
// its parameters as query strings (no filters, since those don't
// flatten cleanly into a query string); POST carries a JSON body
// including filters.
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	var req searchRequest
	if c.Method() == fiber.MethodGet {
		if err := c.QueryParser(&req); err != nil {
			return writeError(c, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err))
		}
	} else if err := c.BodyParser(&req); err != nil {
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

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"job":     req.Job,
		"results": rows,
		"count":   len(rows),
	})
}
