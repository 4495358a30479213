package api

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
)

// Health handles the /health endpoint
func (s *Server) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	httpStatus := 200
	checks := fiber.Map{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = err.Error()
			status = "unhealthy"
			httpStatus = 503
			continue
		}
		checks[name] = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for an access token
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := s.store.FindUserByEmail(c.UserContext(), req.Email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return s.internalError(c, err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return c.Status(401).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return s.internalError(c, err)
	}

	resp := fiber.Map{"token": token, "role": user.Role}
	if user.OperatorID != nil {
		resp["operatorId"] = *user.OperatorID
	}
	if user.OperatorType != nil {
		resp["operatorType"] = *user.OperatorType
	}
	return c.JSON(resp)
}
