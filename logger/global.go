package logger

import (
	"sync"
)

// GlobalConfig представляет глобальные настройки приложения для логгера
type GlobalConfig struct {
	Logger Config `mapstructure:"logger"`

	// Информация о приложении, добавляется ко всем сообщениям
	Application ApplicationInfo `mapstructure:"application"`

	// Настройки для отдельных компонентов (relay, transport, server...)
	Components map[string]ComponentConfig `mapstructure:"components"`
}

// ApplicationInfo содержит информацию о приложении
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // dev, staging, prod
	Instance    string `mapstructure:"instance"`    // instance ID или hostname
}

// ComponentConfig представляет настройки для конкретного компонента
type ComponentConfig struct {
	Fields map[string]any `mapstructure:"fields"`
}

var (
	globalConfig     *GlobalConfig
	globalConfigLock sync.RWMutex
	componentLoggers sync.Map // map[string]*Logger
)

// InitGlobal инициализирует глобальный логгер с полями приложения
func InitGlobal(cfg GlobalConfig) error {
	globalConfigLock.Lock()
	defer globalConfigLock.Unlock()

	if cfg.Application.Environment == "" {
		cfg.Application.Environment = "development"
	}
	if cfg.Components == nil {
		cfg.Components = make(map[string]ComponentConfig)
	}

	base, err := New(cfg.Logger)
	if err != nil {
		return err
	}

	ctx := base.With()
	if cfg.Application.Name != "" {
		ctx = ctx.Str("app_name", cfg.Application.Name)
	}
	if cfg.Application.Version != "" {
		ctx = ctx.Str("app_version", cfg.Application.Version)
	}
	ctx = ctx.Str("environment", cfg.Application.Environment)
	if cfg.Application.Instance != "" {
		ctx = ctx.Str("instance", cfg.Application.Instance)
	}

	globalConfig = &cfg
	SetGlobal(FromZerolog(ctx.Logger()))

	return nil
}

// GetGlobalConfig возвращает копию текущей глобальной конфигурации
func GetGlobalConfig() *GlobalConfig {
	globalConfigLock.RLock()
	defer globalConfigLock.RUnlock()

	if globalConfig == nil {
		return nil
	}
	cfg := *globalConfig
	return &cfg
}

// Component возвращает логгер для компонента с полем component и его собственными полями
func Component(name string) *Logger {
	if cached, ok := componentLoggers.Load(name); ok {
		return cached.(*Logger)
	}

	globalConfigLock.RLock()
	defer globalConfigLock.RUnlock()

	ctx := GetGlobal().With().Str("component", name)
	if globalConfig != nil {
		if cc, ok := globalConfig.Components[name]; ok {
			for k, v := range cc.Fields {
				ctx = ctx.Interface(k, v)
			}
		}
	}

	l := FromZerolog(ctx.Logger())
	actual, _ := componentLoggers.LoadOrStore(name, l)
	return actual.(*Logger)
}
