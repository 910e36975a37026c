package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound   = errors.New("config file not found")
	ErrConfigInvalid    = errors.New("invalid config")
	ErrConfigValidation = errors.New("config validation failed")
	ErrConfigUnmarshal  = errors.New("failed to unmarshal config")
)

const (
	// DefaultEnv значение окружения по умолчанию
	DefaultEnv = "dev"
	// ConfigDir директория с конфигурационными файлами
	ConfigDir = "configs"
	// EnvPrefix префикс переменных окружения: relay.channel_name -> APP_RELAY_CHANNEL_NAME
	EnvPrefix = "APP"
)

// Configurable определяет интерфейс для любой конфигурации
type Configurable interface {
	Validate() error
}

// Loader загружает YAML-конфигурацию с переопределением из окружения
type Loader struct {
	viper *viper.Viper
}

func getEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return DefaultEnv
}

func getConfigPath() string {
	return filepath.Join(ConfigDir, fmt.Sprintf("%s.yaml", getEnv()))
}

// NewLoader создает новый загрузчик конфигурации.
// Пустой путь означает configs/<APP_ENV>.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	if configPath == "" {
		configPath = getConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v}
}

// Load читает файл, раскладывает его в cfg и проверяет результат
func (l *Loader) Load(cfg Configurable) error {
	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		}
		return fmt.Errorf("%w: failed to read config file: %v", ErrConfigInvalid, err)
	}

	if err := l.viper.UnmarshalExact(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUnmarshal, err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	return nil
}

// GetConfigPath возвращает путь к файлу конфигурации
func (l *Loader) GetConfigPath() string {
	return l.viper.ConfigFileUsed()
}

// SetDefault устанавливает значение по умолчанию для ключа.
// Ключи с default участвуют в переопределении из окружения даже без записи в файле.
func (l *Loader) SetDefault(key string, value any) {
	l.viper.SetDefault(key, value)
}

// GetString возвращает строковое значение из конфигурации
func (l *Loader) GetString(key string) string {
	return l.viper.GetString(key)
}

// WatchConfig запускает наблюдение за изменениями конфигурационного файла
func (l *Loader) WatchConfig() {
	l.viper.WatchConfig()
}

// OnConfigChange устанавливает callback, получающий перечитанный загрузчик
func (l *Loader) OnConfigChange(fn func(*Loader)) {
	l.viper.OnConfigChange(func(fsnotify.Event) {
		fn(l)
	})
}

// Load загружает конфигурацию из файла в переданную структуру
func Load(cfg Configurable, configPath string) error {
	return NewLoader(configPath).Load(cfg)
}

// GetEnv возвращает текущее окружение
func GetEnv() string {
	return getEnv()
}
