package ingest

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Server runs the HTTP endpoint that external listeners (Telegram
// bridges, scrapers, curl) push messages into.
type Server struct {
	app     *fiber.App
	events  chan<- Event
	statsFn func() fiber.Map
	host    string
	port    int
}

// NewServer creates an ingestion server. statsFn supplies the payload
// for GET /stats and may be nil.
func NewServer(host string, port int, events chan<- Event, statsFn func() fiber.Map) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:     app,
		events:  events,
		statsFn: statsFn,
		host:    host,
		port:    port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	s.app.Get("/stats", func(c *fiber.Ctx) error {
		if s.statsFn == nil {
			return c.JSON(fiber.Map{})
		}
		return c.JSON(s.statsFn())
	})

	s.app.Post("/message", s.handleMessage)
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	var ev Event
	if err := c.BodyParser(&ev); err != nil {
		log.Error().Err(err).Msg("failed to parse message payload")
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if ev.Text == "" {
		return c.Status(400).JSON(fiber.Map{"error": "empty text"})
	}
	ev.Normalize()

	// Non-blocking send: a stalled pipeline must not back up HTTP.
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("source", ev.SourceID).Msg("event channel full, dropping message")
		return c.Status(503).JSON(fiber.Map{"status": "dropped"})
	}

	return c.JSON(fiber.Map{"status": "queued"})
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("starting ingest server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
