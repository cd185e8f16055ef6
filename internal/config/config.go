package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration of one aggregation run.
//
// Every key is read from MUNIFLOW_<KEY> environment variables (dots become
// underscores), optionally from the YAML file named by MUNIFLOW_CONFIG_FILE.
// The database keeps the shared DB_* variables.
type Config struct {
	Env         string         // Env is the current environment: local, development, production.
	Port        int            // Port of the monitoring server; 0 disables it.
	Boundary    BoundaryConfig // Boundary dataset settings.
	WFS         WFSConfig      // WFS holds the feature service settings.
	Retry       RetryConfig    // Retry bounds the attempts of one fetch.
	CallDelay   time.Duration  // CallDelay is the minimum spacing between fetches.
	Workers     int            // Workers is the number of concurrent fetchers.
	StrictFetch bool           // StrictFetch aborts the run on the first exhausted fetch.
	Output      OutputConfig   // Output destination of the results.
	Database    PostgresConfig // Database holds the postgres database configuration
}

// BoundaryConfig points at the municipality boundary layer.
type BoundaryConfig struct {
	Path       string
	Layer      string
	CodeColumn string
	Codes      []string
}

// WFSConfig describes the measurement query.
type WFSConfig struct {
	BaseURL  string
	TypeName string
	RoadType string
	Timecode string
	Timeout  time.Duration
}

// RetryConfig mirrors wfs.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	Interval    time.Duration
	Multiplier  float64
	Exponential bool
}

// OutputConfig selects where results are written.
type OutputConfig struct {
	Type         string
	Dir          string
	KafkaBrokers []string
	KafkaTopic   string
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
}

var (
	ErrTimecodeRequired = errors.New("timecode is required, set MUNIFLOW_WFS_TIMECODE")
	ErrInvalidTimecode  = errors.New("timecode must be a 12 digit YYYYMMDDhhmm token")
	ErrInvalidWorkers   = errors.New("workers must be at least 1")
)

var timecodePattern = regexp.MustCompile(`^[0-9]{12}$`)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("health_port", "0")
	v.SetDefault("boundary.path", "../data/municipality_2020.gpkg")
	v.SetDefault("boundary.layer", "muni2020")
	v.SetDefault("boundary.code_column", "")
	v.SetDefault("boundary.codes", "")
	v.SetDefault("wfs.base_url", "https://api.jartic-open-traffic.org/geoserver")
	v.SetDefault("wfs.type_name", "t_travospublic_measure_5m")
	v.SetDefault("wfs.road_type", "3")
	v.SetDefault("wfs.timecode", "")
	v.SetDefault("wfs.timeout", "60s")
	v.SetDefault("retry.max_attempts", "3")
	v.SetDefault("retry.interval", "500ms")
	v.SetDefault("retry.multiplier", "2")
	v.SetDefault("retry.exponential", "false")
	v.SetDefault("call_delay", "500ms")
	v.SetDefault("workers", "1")
	v.SetDefault("strict_fetch", "false")
	v.SetDefault("output.type", "csv")
	v.SetDefault("output.dir", "../data")
	v.SetDefault("output.kafka_brokers", "localhost:9092")
	v.SetDefault("output.kafka_topic", "traffic-volumes")
	v.SetDefault("postgres.port", "5432")
}

// Load reads the configuration from .env, the environment and the optional config file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MUNIFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, env := range map[string]string{
		"postgres.host":     "DB_HOST",
		"postgres.port":     "DB_PORT",
		"postgres.user":     "DB_USERNAME",
		"postgres.password": "DB_PASSWORD",
		"postgres.db_name":  "DB_NAME",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if file := os.Getenv("MUNIFLOW_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	p := parser{v: v}

	cfg := &Config{
		Env:  v.GetString("env"),
		Port: p.integer("health_port", "port for monitoring server"),
		Boundary: BoundaryConfig{
			Path:       v.GetString("boundary.path"),
			Layer:      v.GetString("boundary.layer"),
			CodeColumn: v.GetString("boundary.code_column"),
			Codes:      p.list("boundary.codes"),
		},
		WFS: WFSConfig{
			BaseURL:  v.GetString("wfs.base_url"),
			TypeName: v.GetString("wfs.type_name"),
			RoadType: v.GetString("wfs.road_type"),
			Timecode: strings.TrimSpace(v.GetString("wfs.timecode")),
			Timeout:  p.duration("wfs.timeout", "request timeout"),
		},
		Retry: RetryConfig{
			MaxAttempts: p.integer("retry.max_attempts", "retry attempts"),
			Interval:    p.duration("retry.interval", "retry interval"),
			Multiplier:  p.float("retry.multiplier", "retry multiplier"),
			Exponential: p.boolean("retry.exponential", "retry backoff mode"),
		},
		CallDelay:   p.duration("call_delay", "call delay"),
		Workers:     p.integer("workers", "workers"),
		StrictFetch: p.boolean("strict_fetch", "strict fetch flag"),
		Output: OutputConfig{
			Type:         v.GetString("output.type"),
			Dir:          v.GetString("output.dir"),
			KafkaBrokers: p.list("output.kafka_brokers"),
			KafkaTopic:   v.GetString("output.kafka_topic"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	switch {
	case cfg.WFS.Timecode == "":
		return nil, ErrTimecodeRequired
	case !timecodePattern.MatchString(cfg.WFS.Timecode):
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimecode, cfg.WFS.Timecode)
	case cfg.Workers < 1:
		return nil, ErrInvalidWorkers
	}

	return cfg, nil
}

// parser keeps the first conversion error so parse can read all keys in one expression.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(what string) {
	if p.err == nil {
		p.err = fmt.Errorf("failed to parse %s from configuration", what)
	}
}

func (p *parser) duration(key, what string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(what)
	}
	return d
}

func (p *parser) integer(key, what string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(what)
	}
	return n
}

func (p *parser) float(key, what string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.v.GetString(key)), 64)
	if err != nil {
		p.fail(what)
	}
	return f
}

func (p *parser) boolean(key, what string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(what)
	}
	return b
}

// list accepts comma separated strings as well as YAML sequences.
func (p *parser) list(key string) []string {
	var items []string
	for _, raw := range p.v.GetStringSlice(key) {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
