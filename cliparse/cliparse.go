package cliparse

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. PROPJOCKEY_STORE_URL.
const EnvPrefix = "PROPJOCKEY"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Entries   EntriesConfig   `mapstructure:"entries" yaml:"entries"`
	Votes     VotesConfig     `mapstructure:"votes" yaml:"votes"`
	Workflows WorkflowsConfig `mapstructure:"workflows" yaml:"workflows"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Mailgun   MailgunConfig   `mapstructure:"mailgun" yaml:"mailgun"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Sweep     SweepConfig     `mapstructure:"sweep" yaml:"sweep"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"` // memory, postgres, sqlite, mongo
	URL      string `mapstructure:"url" yaml:"url"`
	Database string `mapstructure:"database" yaml:"database"` // mongo only
}

type EntriesConfig struct {
	Property           string   `mapstructure:"property" yaml:"property"`
	RankLabel          string   `mapstructure:"rank_label" yaml:"rank_label"`
	DefaultFilterField string   `mapstructure:"default_filter_field" yaml:"default_filter_field"`
	DescriptionFields  []string `mapstructure:"description_fields" yaml:"description_fields"`
	EntryURL           string   `mapstructure:"entry_url" yaml:"entry_url"`
	PropertyURL        string   `mapstructure:"property_url" yaml:"property_url"`
	RowsPerPage        int      `mapstructure:"rows_per_page" yaml:"rows_per_page"`
}

type VotesConfig struct {
	MaxActivePerUser int `mapstructure:"max_active_per_user" yaml:"max_active_per_user"`
}

type WorkflowsConfig struct {
	Linker       string        `mapstructure:"linker" yaml:"linker"` // store, none
	URL          string        `mapstructure:"url" yaml:"url"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	BasePriority float64       `mapstructure:"base_priority" yaml:"base_priority"`
	VoteWeight   float64       `mapstructure:"vote_weight" yaml:"vote_weight"`
}

type NotifyConfig struct {
	Mailer       string        `mapstructure:"mailer" yaml:"mailer"` // log, null, mailgun
	From         string        `mapstructure:"from" yaml:"from"`
	BCC          []string      `mapstructure:"bcc" yaml:"bcc"`
	StaffTo      []string      `mapstructure:"staff_to" yaml:"staff_to"`
	UserSubject  string        `mapstructure:"user_subject" yaml:"user_subject"`
	UserText     string        `mapstructure:"user_text" yaml:"user_text"`
	StaffSubject string        `mapstructure:"staff_subject" yaml:"staff_subject"`
	StaffText    string        `mapstructure:"staff_text" yaml:"staff_text"`
	Throttle     time.Duration `mapstructure:"throttle" yaml:"throttle"`
}

type MailgunConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	CookieName string        `mapstructure:"cookie_name" yaml:"cookie_name"`
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

type SweepConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"` // cron expression; empty disables
}

// SetDefaults registers every key so env variables can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3318)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.url", "")
	v.SetDefault("store.database", "propjockey")

	v.SetDefault("entries.property", "elasticity")
	v.SetDefault("entries.rank_label", "E above hull / atom (eV)")
	v.SetDefault("entries.default_filter_field", "chemsys")
	v.SetDefault("entries.description_fields", []string{"pretty_formula", "spacegroup.symbol"})
	v.SetDefault("entries.entry_url", "https://materialsproject.org/materials/{id}")
	v.SetDefault("entries.property_url", "https://materialsproject.org/materials/{id}")
	v.SetDefault("entries.rows_per_page", 10)

	v.SetDefault("votes.max_active_per_user", 1000)

	v.SetDefault("workflows.linker", "none")
	v.SetDefault("workflows.url", "")
	v.SetDefault("workflows.cache_ttl", 5*time.Minute)
	v.SetDefault("workflows.base_priority", 0.0)
	v.SetDefault("workflows.vote_weight", 1.0)

	v.SetDefault("notify.mailer", "log")
	v.SetDefault("notify.from", "propjockey <noreply@example.org>")
	v.SetDefault("notify.bcc", []string{})
	v.SetDefault("notify.staff_to", []string{})
	v.SetDefault("notify.user_subject", "")
	v.SetDefault("notify.user_text", "")
	v.SetDefault("notify.staff_subject", "")
	v.SetDefault("notify.staff_text", "")
	v.SetDefault("notify.throttle", 5*time.Second)

	v.SetDefault("mailgun.api_key", "")
	v.SetDefault("mailgun.base_url", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.cookie_name", "propjockey_session")
	v.SetDefault("auth.session_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("sweep.schedule", "")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"port":      "server.port",
	"driver":    "store.driver",
	"store-url": "store.url",
	"log-level": "log.level",
	"pretty":    "log.pretty",
}

// BindFlags defines the common flags on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.IntP("port", "p", 3318, "Server port")
	fs.StringP("driver", "t", "memory", "Store driver (memory, postgres, sqlite, mongo)")
	fs.StringP("store-url", "d", "", "Store URL")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Bool("pretty", false, "Human readable logs")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configuration from, highest first: bound flags, environment
// (including a .env file in the working directory), the config file and
// defaults. An explicit configFile must exist; the default
// ./propjockey.yaml is optional.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("propjockey")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.URL == "" {
			return fmt.Errorf("store url required for driver %s", c.Store.Driver)
		}
	case "mongo":
		if c.Store.URL == "" || c.Store.Database == "" {
			return errors.New("store url and database required for driver mongo")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Entries.Property == "" {
		return errors.New("entries.property required")
	}
	if c.Entries.RowsPerPage <= 0 || c.Entries.RowsPerPage > MaxPageSize {
		return fmt.Errorf("entries.rows_per_page must be between 1 and %d", MaxPageSize)
	}

	switch c.Notify.Mailer {
	case "log", "null":
	case "mailgun":
		if c.Mailgun.APIKey == "" || c.Mailgun.BaseURL == "" {
			return errors.New("mailgun.api_key and mailgun.base_url required for mailer mailgun")
		}
	default:
		return fmt.Errorf("unknown mailer %q", c.Notify.Mailer)
	}

	switch c.Workflows.Linker {
	case "none", "store":
	default:
		return fmt.Errorf("unknown workflow linker %q", c.Workflows.Linker)
	}
	return nil
}

// ValidateServe also checks what the HTTP server needs.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret required (PROPJOCKEY_AUTH_SECRET)")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	return nil
}

// MaxPageSize caps the psize a feed request may ask for.
const MaxPageSize = 100

// YAML renders the configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	masked := c
	if masked.Auth.Secret != "" {
		masked.Auth.Secret = "********"
	}
	if masked.Mailgun.APIKey != "" {
		masked.Mailgun.APIKey = "********"
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
