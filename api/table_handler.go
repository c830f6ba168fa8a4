package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/verror"
)

// describeResponse is the wire shape for a job's current definition plus
// its live queue depth.
type describeResponse struct {
	job.Job
	QueueDepth int64 `json:"queue_depth"`
}

// handleCreateTable handles POST /api/v1/table. The body mirrors
// job.Spec; on success it returns 201 with the frozen job definition,
// or 409 AlreadyExists if the name is taken.
func (s *Server) handleCreateTable(c *fiber.Ctx) error {
	var spec job.Spec
	if err := c.BodyParser(&spec); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err))
	}

	j, err := s.registry.Create(c.Context(), spec)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(j)
}

// handleDeleteTable handles DELETE /api/v1/table/:name.
func (s *Server) handleDeleteTable(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return writeError(c, fmt.Errorf("%w: name parameter required", verror.ErrInvalidRequest))
	}

	if err := s.registry.Delete(c.Context(), name); err != nil {
		return writeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleDescribeTable handles GET /api/v1/table/:name.
func (s *Server) handleDescribeTable(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return writeError(c, fmt.Errorf("%w: name parameter required", verror.ErrInvalidRequest))
	}

	j, depth, err := s.registry.Describe(c.Context(), name)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(describeResponse{Job: j, QueueDepth: depth})
}

// handleListTables handles GET /api/v1/table.
func (s *Server) handleListTables(c *fiber.Ctx) error {
	jobs, err := s.meta.List(c.Context())
	if err != nil {
		return writeError(c, errors.Join(verror.ErrInternal, err))
	}

	return c.JSON(jobs)
}
