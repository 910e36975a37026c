package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	global     *Logger
	globalOnce sync.Once
	globalMu   sync.RWMutex
)

// Config представляет конфигурацию логгера
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json или console
	Output     string `mapstructure:"output"` // stdout, stderr или путь к файлу
	TimeFormat string `mapstructure:"time_format"`
	CallerInfo bool   `mapstructure:"caller_info"`
}

// Logger представляет собой обертку над zerolog.Logger
type Logger struct {
	logger zerolog.Logger
}

// New создает новый экземпляр логгера
func New(cfg Config) (*Logger, error) {
	cfg = sanitize(&cfg)

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		output = file
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.CallerInfo {
		ctx = ctx.Caller()
	}

	return &Logger{logger: ctx.Logger()}, nil
}

// FromZerolog оборачивает готовый zerolog.Logger (удобно в тестах)
func FromZerolog(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

// Nop возвращает логгер, который ничего не пишет
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal логирует сообщение с уровнем Fatal и завершает программу
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }

// With возвращает контекст для построения дочернего логгера
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// WithField возвращает новый логгер с добавленным полем
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields возвращает новый логгер с добавленными полями
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

func (l *Logger) Log() zerolog.Logger {
	return l.logger
}

// Init создает логгер по конфигурации и делает его глобальным
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetGlobal(l)
	return nil
}

// SetGlobal заменяет глобальный логгер; логгеры компонентов пересоздаются
func SetGlobal(l *Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()

	componentLoggers.Range(func(key, _ any) bool {
		componentLoggers.Delete(key)
		return true
	})
}

// GetGlobal возвращает глобальный логгер, создавая логгер по умолчанию при первом обращении
func GetGlobal() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalOnce.Do(func() {
		def, _ := New(Config{})
		globalMu.Lock()
		if global == nil {
			global = def
		}
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

func Debug() *zerolog.Event { return GetGlobal().Debug() }

func Info() *zerolog.Event { return GetGlobal().Info() }

func Warn() *zerolog.Event { return GetGlobal().Warn() }

func Error() *zerolog.Event { return GetGlobal().Error() }

// SetLevel меняет глобальный уровень логирования на лету
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// GetLevel возвращает текущий глобальный уровень логирования
func GetLevel() string {
	return zerolog.GlobalLevel().String()
}

// sanitize ensures the Config struct is populated with default values when fields are empty.
func sanitize(cfg *Config) Config {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	return *cfg
}
