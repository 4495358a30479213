package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

const userKey = "user"

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and stores its claims for later handlers
func Authenticate(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Format: "Bearer <token>"
		parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}

		claims, err := v.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid token"})
		}

		c.Locals(userKey, claims)
		return c.Next()
	}
}

// Authorize admits callers holding one of roles
func Authorize(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}
		for _, r := range roles {
			if user.Role == r {
				return c.Next()
			}
		}
		return c.Status(403).JSON(fiber.Map{"error": "Forbidden"})
	}
}

// CurrentUser returns the claims stored by Authenticate, or nil
func CurrentUser(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(userKey).(*auth.Claims)
	return claims
}

// BusLookup resolves a bus by id
type BusLookup interface {
	GetBus(ctx context.Context, id string) (*models.Bus, error)
}

// ValidatePermit admits operators only for buses they own that carry a
// permit number. Admins are not checked.
func ValidatePermit(buses BusLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}
		if user.IsAdmin() {
			return c.Next()
		}

		bus, err := buses.GetBus(c.UserContext(), c.Params("busId"))
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			logging.LogError(logging.FromContext(c.UserContext()), "permit lookup failed", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
		if bus == nil || bus.OperatorID != user.OperatorID || bus.PermitNumber == nil || *bus.PermitNumber == "" {
			return c.Status(403).JSON(fiber.Map{
				"error": "Unauthorized: Invalid permit or you do not own this bus",
				"code":  "INVALID_PERMIT",
			})
		}
		return c.Next()
	}
}
