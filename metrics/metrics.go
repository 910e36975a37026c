package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
)

// Config представляет конфигурацию метрик
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	Port        int    `mapstructure:"port"`
	ServiceName string `mapstructure:"service_name"`
}

// Metrics представляет собой менеджер метрик
type Metrics struct {
	config   Config
	registry *prometheus.Registry
	server   *http.Server

	// HTTP метрики
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	transport *TransportMetrics
}

// New создает менеджер метрик со своим реестром. Сервер запускается через Run.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "eventrelay"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	m := &Metrics{
		config:   cfg,
		registry: reg,
	}
	factory := promauto.With(reg)

	// Инициализация HTTP метрик
	m.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_http_requests_total", cfg.ServiceName),
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_http_request_duration_seconds", cfg.ServiceName),
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestsInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_http_requests_in_flight", cfg.ServiceName),
			Help: "Current number of HTTP requests being served",
		},
		[]string{"method", "path"},
	)

	m.transport = NewTransportMetrics(reg, cfg.ServiceName)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return m, nil
}

// Enabled сообщает, включены ли метрики
func (m *Metrics) Enabled() bool { return m.config.Enabled }

// Registerer возвращает реестр для внешних коллекторов (gRPC и т.п.)
func (m *Metrics) Registerer() prometheus.Registerer {
	if m.registry == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Transport возвращает метрики транспорта ретранслятора
func (m *Metrics) Transport() transport.Metrics {
	if m.transport == nil {
		return &transport.NoOpMetrics{}
	}
	return m.transport
}

// Run обслуживает HTTP-сервер метрик до отмены контекста
func (m *Metrics) Run(ctx context.Context) error {
	if !m.config.Enabled || m.server == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Starting metrics server on %s", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return m.Stop()
	}
}

// Stop останавливает HTTP-сервер метрик и фоновые обновления
func (m *Metrics) Stop() error {
	if m.transport != nil {
		m.transport.Close()
	}
	if !m.config.Enabled || m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// HTTPMiddleware возвращает middleware для сбора HTTP метрик
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.httpRequestsInFlight.WithLabelValues(r.Method, r.URL.Path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(r.Method, r.URL.Path).Dec()

		// Создаем ResponseWriter для перехвата статуса
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}

		m.httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
	})
}

// FiberMiddleware возвращает middleware для Fiber
func (m *Metrics) FiberMiddleware() fiber.Handler {
	if !m.config.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		// буферы fasthttp переиспользуются после ответа
		method, path := utils.CopyString(c.Method()), utils.CopyString(c.Path())

		m.httpRequestsInFlight.WithLabelValues(method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(method, path).Dec()

		err := c.Next()

		m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().StatusCode())).Inc()

		return err
	}
}

// responseWriter перехватывает статус ответа
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}
