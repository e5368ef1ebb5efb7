package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-sampler/internal/store"
)

var validate = validator.New()

// History is the read side of the cycle outcome store.
type History interface {
	GetLatest() (store.CycleRecord, error)
	GetRecent(limit int) ([]store.CycleRecord, error)
	GetRange(from, to time.Time) ([]store.CycleRecord, error)
}

// RegisterRoutes wires the status and metrics handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service string, location string, history History, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  service,
			"location": location,
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/cycles/latest", func(c *fiber.Ctx) error {
		rec, err := history.GetLatest()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycle has finished yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read cycle history")
		}
		return c.JSON(rec)
	})

	v1.Get("/cycles", func(c *fiber.Ctx) error {
		var req cyclesQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var (
			records []store.CycleRecord
			err     error
		)
		if !req.From.IsZero() {
			records, err = history.GetRange(req.From, req.To)
		} else {
			records, err = history.GetRecent(req.Limit)
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycles for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read cycle history")
		}

		return c.JSON(fiber.Map{
			"location": location,
			"cycles":   records,
		})
	})
}

// cyclesQuery holds query parameters for the cycles endpoint: either a limit
// or a from/to range.
type cyclesQuery struct {
	Limit int `validate:"gte=1,lte=1000"`
	From  time.Time
	To    time.Time `validate:"omitempty,gtefield=From"`
}

func (q *cyclesQuery) bind(c *fiber.Ctx) error {
	q.Limit = 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		q.Limit = n
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" && toStr == "" {
		return nil
	}
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters must be given together")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
