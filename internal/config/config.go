package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all service settings, populated from environment variables
// and an optional YAML config file. Environment variables win over the file.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	DataDir         string        `yaml:"data_dir"`
	BoundariesFile  string        `yaml:"boundaries_file"`
	CorrectionsFile string        `yaml:"corrections_file"`
	FirstYear       int           `yaml:"first_year"`
	LastYear        int           `yaml:"last_year"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Chronicle scraping.
	ChronicleURL       string        `yaml:"chronicle_url"`
	ChronicleFirstYear int           `yaml:"chronicle_first_year"`
	ChronicleRate      time.Duration `yaml:"chronicle_rate"`

	// Geocoding. Mapbox when enabled, otherwise Nominatim.
	MapboxToken      string        `yaml:"-"`
	MapboxEnabled    bool          `yaml:"mapbox_enabled"`
	MapboxTimeout    time.Duration `yaml:"mapbox_timeout"`
	GeocoderRate     time.Duration `yaml:"geocoder_rate"`
	GeocodeCacheFile string        `yaml:"geocode_cache_file"`

	// Translation.
	TranslateEnabled   bool   `yaml:"translate_enabled"`
	OpenAIAPIKey       string `yaml:"-"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	OpenAIModel        string `yaml:"openai_model"`
	TranslateCacheFile string `yaml:"translate_cache_file"`

	// Sinks. Empty values disable the corresponding sink.
	SQLitePath     string   `yaml:"sqlite_path"`
	XLSXPath       string   `yaml:"xlsx_path"`
	PanelCSVDir    string   `yaml:"panel_csv_dir"`
	KafkaBrokers   []string `yaml:"kafka_brokers"`
	KafkaSinkTopic string   `yaml:"kafka_sink_topic"`

	// DayPanel adds the day granularity to the published panels.
	DayPanel bool `yaml:"day_panel"`

	DashboardMaxYear          int  `yaml:"dashboard_max_year"`
	DashboardExcludeSuspected bool `yaml:"dashboard_exclude_suspected"`
}

// Load reads configuration from the environment and, when configFile is
// non-empty, from that YAML file, applying defaults where unset.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("BOUNDARIES_FILE", "data/districts.geojson")
	v.SetDefault("CORRECTIONS_FILE", "")
	v.SetDefault("FIRST_YEAR", 2014)
	v.SetDefault("LAST_YEAR", domain.Now().Year())
	v.SetDefault("REFRESH_INTERVAL", "24h")
	v.SetDefault("CHRONICLE_URL", "https://mut-gegen-rechte-gewalt.de/service/chronik-vorfaelle")
	v.SetDefault("CHRONICLE_FIRST_YEAR", 2017)
	v.SetDefault("CHRONICLE_RATE", "1s")
	v.SetDefault("MAPBOX_TOKEN", "")
	v.SetDefault("MAPBOX_ENABLED", "")
	v.SetDefault("MAPBOX_TIMEOUT", "5s")
	v.SetDefault("GEOCODER_RATE", "50ms")
	v.SetDefault("GEOCODE_CACHE_FILE", "data/locations.csv")
	v.SetDefault("TRANSLATE_ENABLED", false)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("TRANSLATE_CACHE_FILE", "data/translations.csv")
	v.SetDefault("SQLITE_PATH", "data/arvig.db")
	v.SetDefault("XLSX_PATH", "")
	v.SetDefault("PANEL_CSV_DIR", "data")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_SINK_TOPIC", "arvig-panel")
	v.SetDefault("DAY_PANEL", false)
	v.SetDefault("DASHBOARD_MAX_YEAR", 2019)
	v.SetDefault("DASHBOARD_EXCLUDE_SUSPECTED", true)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var err error
	cfg := &Config{
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		DataDir:            v.GetString("DATA_DIR"),
		BoundariesFile:     v.GetString("BOUNDARIES_FILE"),
		CorrectionsFile:    v.GetString("CORRECTIONS_FILE"),
		ChronicleURL:       v.GetString("CHRONICLE_URL"),
		MapboxToken:        v.GetString("MAPBOX_TOKEN"),
		GeocodeCacheFile:   v.GetString("GEOCODE_CACHE_FILE"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		TranslateCacheFile: v.GetString("TRANSLATE_CACHE_FILE"),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		XLSXPath:           v.GetString("XLSX_PATH"),
		PanelCSVDir:        v.GetString("PANEL_CSV_DIR"),
		KafkaBrokers:       parseBrokers(v.GetString("KAFKA_BROKERS")),
		KafkaSinkTopic:     v.GetString("KAFKA_SINK_TOPIC"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"REFRESH_INTERVAL", &cfg.RefreshInterval},
		{"CHRONICLE_RATE", &cfg.ChronicleRate},
		{"MAPBOX_TIMEOUT", &cfg.MapboxTimeout},
		{"GEOCODER_RATE", &cfg.GeocoderRate},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("invalid %s", d.key)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"FIRST_YEAR", &cfg.FirstYear},
		{"LAST_YEAR", &cfg.LastYear},
		{"CHRONICLE_FIRST_YEAR", &cfg.ChronicleFirstYear},
		{"DASHBOARD_MAX_YEAR", &cfg.DashboardMaxYear},
	}
	for _, n := range ints {
		if *n.dst, err = strconv.Atoi(v.GetString(n.key)); err != nil {
			return nil, fmt.Errorf("invalid %s", n.key)
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"TRANSLATE_ENABLED", &cfg.TranslateEnabled},
		{"DAY_PANEL", &cfg.DayPanel},
		{"DASHBOARD_EXCLUDE_SUSPECTED", &cfg.DashboardExcludeSuspected},
	}
	for _, b := range bools {
		if *b.dst, err = strconv.ParseBool(v.GetString(b.key)); err != nil {
			return nil, fmt.Errorf("invalid %s", b.key)
		}
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if s := v.GetString("MAPBOX_ENABLED"); s != "" {
		cfg.MapboxEnabled = s == "true"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FirstYear > c.LastYear {
		return fmt.Errorf("FIRST_YEAR %d is after LAST_YEAR %d", c.FirstYear, c.LastYear)
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if c.BoundariesFile == "" {
		return errors.New("BOUNDARIES_FILE is required")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.TranslateEnabled && c.OpenAIAPIKey == "" {
		return errors.New("TRANSLATE_ENABLED is true but OPENAI_API_KEY is not set")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
