// Package settings loads server settings from defaults, an optional
// parkplanner.{json,yaml} file and PARKPLANNER_* environment variables,
// in increasing order of precedence. Command line flags are applied on top
// by the caller through Set.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PARKPLANNER_PORT
const EnvPrefix = "PARKPLANNER"

// FileName is the settings file base name looked up in the search paths
const FileName = "parkplanner"

// Keys
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyConfigDir      = "configDir"
	KeySessionsDir    = "sessionsDir"
	KeyDataDir        = "dataDir"
	KeyDatasetsURL    = "datasetsUrl"
	KeyStoreDriver    = "store.driver"
	KeyStoreDSN       = "store.dsn"
	KeyLogLevel       = "logLevel"
	KeySessionTTL     = "sessionTtl"
	KeyGraylogEnabled = "graylog.enabled"
	KeyGraylogAddress = "graylog.address"
	KeyNgrokEnabled   = "ngrok.enabled"
	KeyNgrokAuthToken = "ngrok.authToken"
	KeyNgrokDomain    = "ngrok.domain"
)

// Settings is the resolved server configuration
type Settings struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ConfigDir   string        `mapstructure:"configDir"`
	SessionsDir string        `mapstructure:"sessionsDir"`
	DataDir     string        `mapstructure:"dataDir"`
	DatasetsURL string        `mapstructure:"datasetsUrl"`
	LogLevel    string        `mapstructure:"logLevel"`
	SessionTTL  time.Duration `mapstructure:"sessionTtl"`
	Store       StoreSettings `mapstructure:"store"`
	Graylog     Graylog       `mapstructure:"graylog"`
	Ngrok       Ngrok         `mapstructure:"ngrok"`
}

// StoreSettings selects the saved-plan store. Driver is memory, sqlite or postgres.
type StoreSettings struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Graylog configures the optional GELF log sink
type Graylog struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Ngrok configures the optional public tunnel
type Ngrok struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authToken"`
	Domain    string `mapstructure:"domain"`
}

// Addr returns host:port
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Loader reads settings. The zero value is not usable; call NewLoader.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults applied and environment overrides bound
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// nested keys are only seen by AutomaticEnv once bound
	for _, key := range []string{KeyStoreDriver, KeyStoreDSN, KeyGraylogEnabled, KeyGraylogAddress, KeyNgrokEnabled, KeyNgrokAuthToken, KeyNgrokDomain} {
		v.BindEnv(key)
	}
	// ngrok's own variable is honored too
	v.BindEnv(KeyNgrokAuthToken, EnvPrefix+"_NGROK_AUTHTOKEN", "NGROK_AUTHTOKEN")
	v.BindEnv(KeyConfigDir, EnvPrefix+"_CONFIGDIR", "CONFIG_DIR")

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, "localhost")
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyConfigDir, "configs")
	v.SetDefault(KeySessionsDir, "sessions")
	v.SetDefault(KeyDataDir, "data")
	v.SetDefault(KeyDatasetsURL, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeySessionTTL, "24h")

	v.SetDefault(KeyStoreDriver, "memory")
	v.SetDefault(KeyStoreDSN, "")

	v.SetDefault(KeyGraylogEnabled, false)
	v.SetDefault(KeyGraylogAddress, "localhost:12201")

	v.SetDefault(KeyNgrokEnabled, false)
	v.SetDefault(KeyNgrokAuthToken, "")
	v.SetDefault(KeyNgrokDomain, "")
}

// ReadFile reads parkplanner.json or parkplanner.yaml from the first search
// path that has one. A missing file is not an error.
func (l *Loader) ReadFile(paths ...string) error {
	l.v.SetConfigName(FileName)
	for _, p := range paths {
		l.v.AddConfigPath(p)
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading settings file: %w", err)
	}
	return nil
}

// ReadPath reads one explicit settings file
func (l *Loader) ReadPath(path string) error {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading settings file %s: %w", path, err)
	}
	return nil
}

// File returns the settings file in use, empty when none was read
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Set overrides key with the highest precedence
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load resolves the settings
func (l *Loader) Load() (*Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding settings: %w", err)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", s.Port)
	}
	switch s.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown store driver %q (memory, sqlite or postgres)", s.Store.Driver)
	}
	if s.Store.Driver == "postgres" && s.Store.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the postgres driver")
	}
	return &s, nil
}
