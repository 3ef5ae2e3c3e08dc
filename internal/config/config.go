// Package config loads the command line configuration from defaults, a YAML
// file, KNOLSCHED_ environment variables and flags, in that order of
// precedence from lowest to highest.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/sched"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: KNOLSCHED_SCHEDULER__QUEUE_LIMIT sets
// scheduler.queue_limit.
const EnvPrefix = "KNOLSCHED_"

// Config is the full configuration of the command line tool.
type Config struct {
	DB        string            `koanf:"db" validate:"required"`
	Log       LogConfig         `koanf:"log"`
	Scheduler SchedulerConfig   `koanf:"scheduler"`
	Defaults  domain.DeckConfig `koanf:"defaults"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchedulerConfig holds the queue settings passed to the scheduler.
type SchedulerConfig struct {
	QueueLimit  int    `koanf:"queue_limit" validate:"min=1"`
	ReportLimit int    `koanf:"report_limit" validate:"min=1"`
	NewSpread   string `koanf:"new_spread" validate:"oneof=distribute last first"`
	// CollapseTime is in seconds.
	CollapseTime int  `koanf:"collapse_time" validate:"min=0"`
	BuryOnAnswer bool `koanf:"bury_on_answer"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := sched.DefaultOptions()
	return Config{
		DB: "knolsched.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			QueueLimit:   opts.QueueLimit,
			ReportLimit:  opts.ReportLimit,
			NewSpread:    "distribute",
			CollapseTime: int(opts.CollapseTime.Seconds()),
			BuryOnAnswer: opts.BuryOnAnswer,
		},
		Defaults: domain.DefaultDeckConfig(),
	}
}

// NewFlagSet returns a flag set with the flags Load understands.
func NewFlagSet(name string) *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", def.DB, "Path to the SQLite database file")
	fs.String("log.level", def.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", def.Log.Format, "Log format: text or json")
	fs.String("scheduler.new_spread", def.Scheduler.NewSpread, "How new cards mix with reviews: distribute, last or first")
	return fs
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses args with fs and builds the layered configuration.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	// unchanged flags only fill keys no earlier layer set
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	dc := &mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           &cfg,
		WeaklyTypedInput: true,
		// a list from a later layer replaces the default list instead of
		// overwriting it element by element
		ZeroFields: true,
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: dc}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Options converts the section into scheduler options.
func (c SchedulerConfig) Options() sched.Options {
	spread := sched.SpreadDistribute
	switch c.NewSpread {
	case "last":
		spread = sched.SpreadLast
	case "first":
		spread = sched.SpreadFirst
	}
	return sched.Options{
		QueueLimit:   c.QueueLimit,
		ReportLimit:  c.ReportLimit,
		NewSpread:    spread,
		CollapseTime: time.Duration(c.CollapseTime) * time.Second,
		BuryOnAnswer: c.BuryOnAnswer,
	}
}

// Logger builds a logger writing to w.
func (c LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
