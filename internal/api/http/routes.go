package httpapi

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-live-sync/internal/common"
	"github.com/i474232898/weather-live-sync/internal/registry"
	"github.com/i474232898/weather-live-sync/internal/stream"
	"github.com/i474232898/weather-live-sync/internal/weather"
)

var validate = validator.New()

// Readings is the part of weather.Service the handlers need.
type Readings interface {
	Resolve(ctx context.Context, city string) (weather.CityReading, error)
	Save(city string, r weather.CityReading)
	Forget(city string)
}

// Snapshots returns the current encoded snapshot message.
type Snapshots interface {
	Current(ctx context.Context) ([]byte, error)
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Registry  registry.Repository
	Readings  Readings
	Hub       *stream.Hub
	Snapshots Snapshots

	// Changed, if set, is called after every successful mutation.
	Changed func()

	// RetryDelay is advertised to SSE clients as their reconnect delay.
	RetryDelay time.Duration
	// Keepalive is the interval between SSE comment lines.
	Keepalive time.Duration

	Logger *slog.Logger
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = 3 * time.Second
	}
	if d.Keepalive <= 0 {
		d.Keepalive = 15 * time.Second
	}
	h := &handlers{Deps: d}

	app.Get("/health", h.health)

	app.Get("/cities", h.listCities)
	app.Post("/cities", h.addCity)
	app.Delete("/cities/:name", h.removeCity)

	app.Get("/favorites", h.listFavorites)
	app.Post("/favorites", h.addFavorite)
	app.Delete("/favorites/:name", h.removeFavorite)

	app.Get("/sse", h.sse)
}

type handlers struct {
	Deps
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "weather-backend",
		"clients": h.Hub.ClientCount(),
	})
}

func (h *handlers) listCities(c *fiber.Ctx) error {
	cities, err := h.Registry.Cities(c.UserContext())
	if err != nil {
		h.Logger.Error("list cities failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list cities")
	}
	return c.JSON(weather.CityList{Cities: cities})
}

func (h *handlers) addCity(c *fiber.Ctx) error {
	city, err := parseCityRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ctx := c.UserContext()

	tracked, err := h.Registry.HasCity(ctx, city)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to add city")
	}
	if tracked {
		return fiber.NewError(fiber.StatusConflict, "city already tracked")
	}

	reading, err := h.Readings.Resolve(ctx, city)
	switch {
	case errors.Is(err, weather.ErrUnknownCity):
		return fiber.NewError(fiber.StatusNotFound, "city not found")
	case err != nil:
		// the source is unreachable, not rejecting the name; the fetch loop retries
		h.Logger.Warn("resolve failed; tracking without data", "city", city, "error", err)
		reading = weather.CityReading{}
	}

	if err := h.Registry.AddCity(ctx, city); err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			return fiber.NewError(fiber.StatusConflict, "city already tracked")
		}
		h.Logger.Error("add city failed", "city", city, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to add city")
	}
	h.Readings.Save(city, reading)
	h.changed()

	return c.Status(fiber.StatusCreated).JSON(weather.CityRequest{City: city})
}

func (h *handlers) removeCity(c *fiber.Ctx) error {
	city, err := pathCity(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.Registry.RemoveCity(c.UserContext(), city); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "city not tracked")
		}
		h.Logger.Error("remove city failed", "city", city, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to remove city")
	}
	h.Readings.Forget(city)
	h.changed()

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) listFavorites(c *fiber.Ctx) error {
	favs, err := h.Registry.Favorites(c.UserContext())
	if err != nil {
		h.Logger.Error("list favorites failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list favorites")
	}
	return c.JSON(weather.FavoriteList{Favorites: favs})
}

func (h *handlers) addFavorite(c *fiber.Ctx) error {
	city, err := parseCityRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.Registry.AddFavorite(c.UserContext(), city); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "city not tracked")
		case errors.Is(err, registry.ErrDuplicate):
			return fiber.NewError(fiber.StatusConflict, "city already a favorite")
		}
		h.Logger.Error("add favorite failed", "city", city, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to add favorite")
	}

	return c.Status(fiber.StatusCreated).JSON(weather.CityRequest{City: city})
}

func (h *handlers) removeFavorite(c *fiber.Ctx) error {
	city, err := pathCity(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.Registry.RemoveFavorite(c.UserContext(), city); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "city is not a favorite")
		}
		h.Logger.Error("remove favorite failed", "city", city, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to remove favorite")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// sse streams snapshots until the client goes away or the hub is closed.
func (h *handlers) sse(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	initial, err := h.Snapshots.Current(c.UserContext())
	if err != nil {
		h.Logger.Warn("initial snapshot unavailable", "error", err)
	}

	clientID := uuid.NewString()
	msgs := h.Hub.AddClient(clientID)
	retry, keepalive, logger := h.RetryDelay, h.Keepalive, h.Logger

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.Hub.RemoveClient(clientID)

		hello := stream.Message{Event: "connected", Data: []byte(`{"client_id":"` + clientID + `"}`)}
		if err := stream.WriteRetry(w, retry); err != nil {
			return
		}
		if err := stream.WriteMessage(w, hello); err != nil {
			return
		}
		if initial != nil {
			if err := stream.WriteMessage(w, stream.Message{ID: h.Hub.NextID(), Data: initial}); err != nil {
				return
			}
		}

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if err := stream.WriteMessage(w, msg); err != nil {
					logger.Debug("sse write failed", "client_id", clientID, "error", err)
					return
				}
			case <-ticker.C:
				if err := stream.WriteComment(w, "keepalive"); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func (h *handlers) changed() {
	if h.Changed != nil {
		h.Changed()
	}
}

func parseCityRequest(c *fiber.Ctx) (string, error) {
	var req weather.CityRequest
	if err := c.BodyParser(&req); err != nil {
		return "", errors.New("body must be JSON: {\"city\": \"<name>\"}")
	}
	req.City = common.CityName(req.City)
	if err := validate.Struct(req); err != nil {
		return "", err
	}
	return req.City, nil
}

func pathCity(c *fiber.Ctx) (string, error) {
	city, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return "", err
	}
	city = common.CityName(city)
	if city == "" {
		return "", errors.New("city name is required")
	}
	return city, nil
}
