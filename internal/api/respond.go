package api

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kusalkrp/bus-tracking-api/internal/db"
	"github.com/kusalkrp/bus-tracking-api/internal/logging"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names in messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// badRequest writes a 400 with message
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(400).JSON(fiber.Map{"error": message})
}

// parseBody decodes and validates the JSON body into dst
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.New("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

// validationMessage describes the first failed field of err
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// storeError maps a persistence error onto the response taxonomy. notFound
// and conflict are the client messages for the matching sentinels.
func (s *Server) storeError(c *fiber.Ctx, err error, notFound, conflict string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": notFound})
	case errors.Is(err, db.ErrConflict):
		return c.Status(409).JSON(fiber.Map{"error": conflict})
	case errors.Is(err, db.ErrInvalidReference):
		return badRequest(c, "Referenced resource does not exist")
	}
	return s.internalError(c, err)
}

// internalError logs err and writes a generic 500
func (s *Server) internalError(c *fiber.Ctx, err error) error {
	logger := logging.FromContextOr(c.UserContext(), s.logger)
	logging.LogError(logger, fmt.Sprintf("%s %s failed", c.Method(), c.Path()), err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
}

// parsePage reads page and limit. Invalid values fall back to the defaults,
// and limit is capped at maxLimit.
func parsePage(c *fiber.Ctx) db.Page {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return db.Page{Number: page, Limit: limit}
}

// paged renders a list response under key with the pagination envelope
func paged(key string, items any, total int, p db.Page) fiber.Map {
	totalPages := int(math.Ceil(float64(total) / float64(p.Limit)))
	return fiber.Map{
		key:          items,
		"total":      total,
		"page":       p.Number,
		"limit":      p.Limit,
		"totalPages": totalPages,
		"hasNext":    p.Number < totalPages,
		"hasPrev":    p.Number > 1,
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTime accepts RFC 3339, a zone-less timestamp or a bare date, read as UTC
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// queryTime parses an optional time query parameter
func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, fmt.Errorf("Invalid date format for %q parameter", key)
	}
	return &t, nil
}

// queryFloat parses an optional numeric query parameter
func queryFloat(c *fiber.Ctx, key string) (*float64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &f, nil
}

// queryInt parses an optional integer query parameter
func queryInt(c *fiber.Ctx, key string) (*int, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &n, nil
}

// queryList splits a comma separated parameter, dropping empty items
func queryList(c *fiber.Ctx, key string) []string {
	var out []string
	for _, item := range strings.Split(c.Query(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseSort splits "field [asc|desc]"
func parseSort(s string) (field string, desc bool) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && strings.EqualFold(parts[1], "desc")
}
