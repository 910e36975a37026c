package server

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	platformlogger "github.com/zynerotech/eventrelay/logger"
)

// Config представляет конфигурацию веб-сервера
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Server представляет веб-сервер на основе Fiber
type Server struct {
	app    *fiber.App
	config Config
}

// New создает новый экземпляр веб-сервера. middleware добавляются после
// compress и recover, например сбор HTTP метрик.
func New(cfg Config, middleware ...fiber.Handler) (*Server, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	fiberConfig := fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		ErrorHandler:          errorHandler,
		JSONEncoder: func(v any) ([]byte, error) {
			return sonic.Marshal(v)
		},
		JSONDecoder: func(data []byte, v any) error {
			return sonic.Unmarshal(data, v)
		},
	}

	app := fiber.New(fiberConfig)

	app.Use(compress.New())
	app.Use(recover.New())
	for _, mw := range middleware {
		if mw != nil {
			app.Use(mw)
		}
	}

	return &Server{
		app:    app,
		config: cfg,
	}, nil
}

// Start запускает веб-сервер
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// Run обслуживает запросы до отмены контекста
func (s *Server) Run(ctx context.Context) error {
	if !s.config.Enabled {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		platformlogger.Info().Msgf("Starting HTTP server on %s", s.config.Address)
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop останавливает веб-сервер
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App возвращает экземпляр приложения Fiber
func (s *Server) App() *fiber.App {
	return s.app
}

type errorResponse struct {
	Error string `json:"error"`
}

// errorHandler отдает ошибки в JSON
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}
