package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
)

// Драйверы хранилища
const (
	DriverMemory   = "memory"
	DriverBunt     = "bunt"
	DriverPostgres = "postgres"
)

type Config struct {
	Port string `json:"port"`

	// Каталог наборов (пусто = встроенный по умолчанию)
	CatalogPath string `json:"catalogPath"`
	// Схема коллекций: каталог с DSL (пусто = встроенная) и вариант встроенной
	SchemaDir     string `json:"schemaDir"`
	SchemaVariant string `json:"schemaVariant"` // "standard" (default) | "legacy"

	Driver      string `json:"driver"` // "memory" (default) | "bunt" | "postgres"
	DBURL       string `json:"dbUrl"`
	BuntPath    string `json:"buntPath"` // пусто = :memory:
	AutoMigrate bool   `json:"autoMigrate"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"` // "auto" (default) | "json" | "console"
}

func def() Config {
	return Config{
		Port:          "8080",
		CatalogPath:   "",
		SchemaDir:     "",
		SchemaVariant: "standard",
		Driver:        DriverMemory,
		DBURL:         "",
		BuntPath:      "data/fieldsync.db",
		AutoMigrate:   false,
		LogLevel:      "info",
		LogFormat:     "auto",
	}
}

// Default — значения по умолчанию
func Default() Config { return def() }

func loadJSON(path string, c Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, errors.Wrapf(err, "parse %s", path)
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "1" || v == "true" || v == "yes" {
		return true, true
	}
	if v == "0" || v == "false" || v == "no" {
		return false, true
	}
	return false, false
}

// BindFlags регистрирует флаги, перекрывающие конфиг. Значения по умолчанию
// здесь не важны: применяются только явно заданные флаги.
func BindFlags(fs *pflag.FlagSet) {
	d := def()
	fs.String("config", "config.json", "Path to config JSON")
	fs.String("port", d.Port, "HTTP port")
	fs.String("catalog", d.CatalogPath, "Path to custom field catalog YAML (empty = built-in)")
	fs.String("schema-dir", d.SchemaDir, "Path to collection DSL directory (empty = embedded)")
	fs.String("schema-variant", d.SchemaVariant, "Embedded collection schema (standard/legacy)")
	fs.String("driver", d.Driver, "Storage driver (memory/bunt/postgres)")
	fs.String("db", d.DBURL, "Postgres URL (driver=postgres)")
	fs.String("bunt-path", d.BuntPath, "BuntDB file (driver=bunt, empty = in-memory)")
	fs.String("auto-migrate", strconv.FormatBool(d.AutoMigrate), "Apply DDL on start (true/false)")
	fs.String("log-level", d.LogLevel, "Log level (debug/info/warn/error)")
	fs.String("log-format", d.LogFormat, "Log format (auto/json/console)")
}

// Load: defaults → JSON (если файл существует) → FIELDSYNC_* → явно заданные флаги.
// fs может быть nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	jsonPath := getenv("FIELDSYNC_CONFIG", "config.json")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			jsonPath = f.Value.String()
		}
	}
	return LoadWithPath(jsonPath, fs)
}

// LoadWithPath читает JSON по указанному пути, потом применяет ENV и флаги.
func LoadWithPath(jsonPath string, fs *pflag.FlagSet) (Config, error) {
	cfg := def()

	// JSON (если файл существует)
	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(jsonPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = c2
	}

	// ENV overrides
	cfg.Port = getenv("FIELDSYNC_PORT", cfg.Port)
	cfg.CatalogPath = getenv("FIELDSYNC_CATALOG", cfg.CatalogPath)
	cfg.SchemaDir = getenv("FIELDSYNC_SCHEMA_DIR", cfg.SchemaDir)
	cfg.SchemaVariant = getenv("FIELDSYNC_SCHEMA_VARIANT", cfg.SchemaVariant)
	cfg.Driver = getenv("FIELDSYNC_DRIVER", cfg.Driver)
	cfg.DBURL = getenv("FIELDSYNC_DB_URL", cfg.DBURL)
	cfg.BuntPath = getenv("FIELDSYNC_BUNT_PATH", cfg.BuntPath)
	cfg.AutoMigrate = getenvBool("FIELDSYNC_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.LogLevel = getenv("FIELDSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("FIELDSYNC_LOG_FORMAT", cfg.LogFormat)

	// Flags overrides
	if fs != nil {
		str := func(name string, dst *string) {
			if f := fs.Lookup(name); f != nil && f.Changed {
				*dst = strings.TrimSpace(f.Value.String())
			}
		}
		str("port", &cfg.Port)
		str("catalog", &cfg.CatalogPath)
		str("schema-dir", &cfg.SchemaDir)
		str("schema-variant", &cfg.SchemaVariant)
		str("driver", &cfg.Driver)
		str("db", &cfg.DBURL)
		str("bunt-path", &cfg.BuntPath)
		str("log-level", &cfg.LogLevel)
		str("log-format", &cfg.LogFormat)
		if f := fs.Lookup("auto-migrate"); f != nil && f.Changed {
			b, ok := parseBool(f.Value.String())
			if !ok {
				return cfg, errors.Newf("auto-migrate: invalid boolean %q", f.Value.String())
			}
			cfg.AutoMigrate = b
		}
	}

	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverBunt:
	case DriverPostgres:
		if strings.TrimSpace(c.DBURL) == "" {
			return errors.New("driver=postgres requires dbUrl")
		}
	default:
		return errors.Newf("unknown driver %q", c.Driver)
	}
	if c.SchemaDir == "" && c.SchemaVariant != "standard" && c.SchemaVariant != "legacy" {
		return errors.Newf("unknown schema variant %q", c.SchemaVariant)
	}
	return nil
}

// Addr — адрес для http.Server
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
