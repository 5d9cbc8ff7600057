package httpapi

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/analytics"
	"github.com/i474232898/weather-ingestion/internal/broadcast"
	"github.com/i474232898/weather-ingestion/internal/weather"
)

var validate = validator.New()

// AnalyticsComputer answers windowed analytics requests.
type AnalyticsComputer interface {
	Compute(ctx context.Context, windowHours int) ([]weather.CityAnalytics, error)
}

// RecentReader lists the most recent stored readings.
type RecentReader interface {
	QueryRecent(ctx context.Context, limit int) ([]weather.Reading, error)
}

// Deps are the components the HTTP layer serves from.
type Deps struct {
	Analytics AnalyticsComputer
	Readings  RecentReader
	Hub       *broadcast.Hub
	Cities    []string
	Logger    *zap.Logger
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.Hub != nil {
		registerWebSocket(app, deps.Hub, deps.Logger)
	}

	v1 := app.Group("/api/v1")

	v1.Get("/analytics", func(c *fiber.Ctx) error {
		q := analyticsQuery{Hours: analytics.DefaultWindowHours}
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "hours must be an integer")
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, analytics.ValidateWindow(q.Hours).Error())
		}

		result, err := deps.Analytics.Compute(c.UserContext(), q.Hours)
		if err != nil {
			if errors.Is(err, analytics.ErrInvalidWindow) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			deps.Logger.Error("analytics query failed", zap.Int("hours", q.Hours), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute analytics")
		}
		if result == nil {
			result = []weather.CityAnalytics{}
		}
		return c.JSON(result)
	})

	v1.Get("/readings/recent", func(c *fiber.Ctx) error {
		q := recentQuery{Limit: 10}
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
		}

		readings, err := deps.Readings.QueryRecent(c.UserContext(), q.Limit)
		if err != nil {
			deps.Logger.Error("recent readings query failed", zap.Int("limit", q.Limit), zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load readings")
		}
		if readings == nil {
			readings = []weather.Reading{}
		}
		return c.JSON(readings)
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		cities := deps.Cities
		if cities == nil {
			cities = []string{}
		}
		return c.JSON(fiber.Map{"cities": cities})
	})
}

// analyticsQuery holds query parameters for the analytics endpoint.
type analyticsQuery struct {
	Hours int `query:"hours" validate:"min=1,max=168"`
}

// recentQuery holds query parameters for the recent readings endpoint.
type recentQuery struct {
	Limit int `query:"limit" validate:"min=1,max=100"`
}
