// Package config loads the job configuration from the environment. The
// resulting Config is built once per process and never mutated.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"db_sheets_sync/internal/source"
)

const (
	DestinationSheets = "sheets"
	DestinationXLSX   = "xlsx"
)

type Config struct {
	Database    DatabaseConfig
	Destination DestinationConfig
	Credentials CredentialsConfig
	Sync        SyncConfig
	Server      ServerConfig
	Notify      NotifyConfig
	Targets     []Target
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
	Timeout  time.Duration
}

type DestinationConfig struct {
	Kind          string
	SpreadsheetID string
	XLSXPath      string
	ValueInput    string
}

// CredentialsConfig locates the Google service account JSON. JSON wins over
// the secret manager lookup when both are set.
type CredentialsConfig struct {
	JSON        string
	SecretID    string
	SecretScope string
}

type SyncConfig struct {
	RowLimit    int
	ChunkSize   int
	ChunkDelay  time.Duration
	TargetDelay time.Duration
	Metadata    bool
}

type ServerConfig struct {
	Port int
}

type NotifyConfig struct {
	Enabled  bool
	URL      string
	Topic    string
	Priority string
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

func LoadFrom(getenv Getenv) (Config, error) {
	var cfg Config
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error

	cfg.Database = DatabaseConfig{
		Driver:   getenv.withDefault("DB_DRIVER", "postgres"),
		Host:     getenv.withDefault("DB_HOST", ""),
		Name:     getenv.withDefault("DB_NAME", ""),
		User:     getenv.withDefault("DB_USER", ""),
		Password: getenv("DB_PASSWORD"),
		SSLMode:  getenv.withDefault("DB_SSLMODE", "disable"),
		DSN:      getenv.withDefault("DB_DSN", ""),
	}
	cfg.Database.Port, err = getenv.integer("DB_PORT", 5432)
	collect(err)
	cfg.Database.Timeout, err = getenv.duration("DB_TIMEOUT", 10*time.Second)
	collect(err)

	cfg.Destination = DestinationConfig{
		Kind:          getenv.withDefault("DESTINATION", DestinationSheets),
		SpreadsheetID: getenv.withDefault("SPREADSHEET_ID", ""),
		XLSXPath:      getenv.withDefault("XLSX_PATH", ""),
		ValueInput:    getenv.withDefault("SHEETS_VALUE_INPUT", "USER_ENTERED"),
	}

	cfg.Credentials = CredentialsConfig{
		JSON:        getenv.withDefault("GOOGLE_CREDENTIALS_JSON", ""),
		SecretID:    getenv.withDefault("CREDENTIALS_SECRET_ID", ""),
		SecretScope: getenv.withDefault("CREDENTIALS_SECRET_SCOPE", ""),
	}

	cfg.Sync.RowLimit, err = getenv.integer("SYNC_ROW_LIMIT", 10000)
	collect(err)
	cfg.Sync.ChunkSize, err = getenv.integer("SYNC_CHUNK_SIZE", 100)
	collect(err)
	cfg.Sync.ChunkDelay, err = getenv.duration("SYNC_CHUNK_DELAY", 500*time.Millisecond)
	collect(err)
	cfg.Sync.TargetDelay, err = getenv.duration("SYNC_TARGET_DELAY", 2*time.Second)
	collect(err)
	cfg.Sync.Metadata, err = getenv.boolean("SYNC_METADATA", true)
	collect(err)

	cfg.Server.Port, err = getenv.integer("PORT", 8080)
	collect(err)

	cfg.Notify = NotifyConfig{
		URL:      getenv.withDefault("NTFY_URL", "https://ntfy.sh"),
		Topic:    getenv.withDefault("NTFY_TOPIC", "db-sheets-sync"),
		Priority: getenv.withDefault("NTFY_PRIORITY", "default"),
	}
	cfg.Notify.Enabled, err = getenv.boolean("NTFY_ENABLED", false)
	collect(err)

	if path := getenv.withDefault("SYNC_TARGETS_FILE", ""); path != "" {
		cfg.Targets, err = LoadTargetsFile(path)
	} else {
		cfg.Targets, err = ParseTargetsList(getenv("SYNC_TARGETS"))
	}
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable job.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			if c.Database.Host == "" {
				errs = append(errs, errors.New("DB_HOST is required"))
			}
			if c.Database.Name == "" {
				errs = append(errs, errors.New("DB_NAME is required"))
			}
			if c.Database.User == "" {
				errs = append(errs, errors.New("DB_USER is required"))
			}
		}
	case "sqlite3":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Database.Timeout <= 0 {
		errs = append(errs, errors.New("DB_TIMEOUT must be positive"))
	}

	switch c.Destination.Kind {
	case DestinationSheets:
		if c.Destination.SpreadsheetID == "" {
			errs = append(errs, errors.New("SPREADSHEET_ID is required"))
		}
		if c.Credentials.JSON == "" && c.Credentials.SecretID == "" {
			errs = append(errs, errors.New("GOOGLE_CREDENTIALS_JSON or CREDENTIALS_SECRET_ID is required"))
		}
		if c.Destination.ValueInput != "USER_ENTERED" && c.Destination.ValueInput != "RAW" {
			errs = append(errs, fmt.Errorf("unsupported SHEETS_VALUE_INPUT %q", c.Destination.ValueInput))
		}
	case DestinationXLSX:
		if c.Destination.XLSXPath == "" {
			errs = append(errs, errors.New("XLSX_PATH is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DESTINATION %q", c.Destination.Kind))
	}

	if c.Sync.RowLimit <= 0 {
		errs = append(errs, errors.New("SYNC_ROW_LIMIT must be positive"))
	}
	if c.Sync.ChunkSize < 0 {
		errs = append(errs, errors.New("SYNC_CHUNK_SIZE must not be negative"))
	}
	if c.Sync.ChunkDelay < 0 || c.Sync.TargetDelay < 0 {
		errs = append(errs, errors.New("sync delays must not be negative"))
	}

	if err := validateTargets(c.Targets); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ConnectionString returns DB_DSN when set, otherwise a postgres URL built
// from the individual settings.
func (d DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return source.PostgresDSN(d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode, d.Timeout)
}

// Target looks up a configured target by name.
func (c Config) Target(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}
