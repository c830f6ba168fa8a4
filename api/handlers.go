package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paperlane/vectorize/pkg/verror"
)

// ErrorResponse is the JSON body returned for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// writeError surfaces err as the HTTP status and JSON body the error
// handling design maps it to; this is the single point in the core that
// translates a typed verror into a status code (§7).
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(verror.HTTPStatus(err)).JSON(ErrorResponse{
		Error: err.Error(),
		Kind:  verror.Kind(err),
	})
}
