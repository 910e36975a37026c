package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	platformlogger "github.com/zynerotech/eventrelay/logger"
)

// Config представляет конфигурацию healthcheck
type Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	ReadinessPath string `mapstructure:"readiness_path"`
	Port          int    `mapstructure:"port"`
}

// Check проверяет готовность одного компонента. nil означает "готов".
type Check func(ctx context.Context) error

// Healthcheck представляет менеджер проверок здоровья
type Healthcheck struct {
	config  Config
	handler http.Handler
	server  *http.Server

	mu     sync.RWMutex
	checks map[string]Check
}

// Option настраивает Healthcheck
type Option func(*Healthcheck)

// WithMiddleware оборачивает обработчики, например метриками HTTP
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(h *Healthcheck) {
		h.handler = mw(h.handler)
	}
}

// New создает экземпляр health-check сервера. Сервер запускается через Run.
func New(cfg Config, opts ...Option) (*Healthcheck, error) {
	if cfg.Path == "" {
		cfg.Path = "/health"
	}
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = "/ready"
	}
	if cfg.Path == cfg.ReadinessPath {
		return nil, fmt.Errorf("healthcheck path and readiness path must differ: %q", cfg.Path)
	}

	h := &Healthcheck{
		config: cfg,
		checks: make(map[string]Check),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, h.handleHealthcheck)
	mux.HandleFunc(cfg.ReadinessPath, h.handleReadiness)
	h.handler = mux

	for _, opt := range opts {
		opt(h)
	}

	if cfg.Enabled {
		h.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return h, nil
}

// Register добавляет проверку готовности под именем name
func (h *Healthcheck) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Handler возвращает HTTP-обработчик проверок
func (h *Healthcheck) Handler() http.Handler {
	return h.handler
}

// Run обслуживает HTTP-сервер проверок до отмены контекста
func (h *Healthcheck) Run(ctx context.Context) error {
	if !h.config.Enabled || h.server == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		platformlogger.Info().Msgf("Starting healthcheck server on %s", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("healthcheck server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return h.Stop()
	}
}

// Stop останавливает HTTP-сервер проверок здоровья
func (h *Healthcheck) Stop() error {
	if !h.config.Enabled || h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// handleHealthcheck обрабатывает запрос на проверку живости процесса
func (h *Healthcheck) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReadiness выполняет все зарегистрированные проверки
func (h *Healthcheck) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	body, err := sonic.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
