package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type FlowControlCfg struct {
	AccumulationThreshold int   `koanf:"accumulation_threshold"` // park pulls at/above this staged count
	ResumeThreshold       int   `koanf:"resume_threshold"`       // resume pulls at/below this staged count
	SpanThreshold         int64 `koanf:"span_threshold"`         // max ack-window span before parking
}

type RetryCfg struct {
	PullRedeliveryDelay   time.Duration `koanf:"pull_redelivery_delay"`   // fixed delay before retrying a failed pull
	FetchOffsetAttempts   int           `koanf:"fetch_offset_attempts"`   // bounded retries fetching a committed offset
	CorrectOffsetAttempts int           `koanf:"correct_offset_attempts"` // bounded retries persisting a corrected offset
}

type Config struct {
	Topic string `koanf:"topic"`
	Tag   string `koanf:"tag"`
	Extra string `koanf:"extra"` // static metadata attached to every emitted event

	PullBatchSize    int `koanf:"pull_batch_size"`
	DeliverBatchSize int `koanf:"deliver_batch_size"`

	FlowControl FlowControlCfg `koanf:"flow_control"`
	Retry       RetryCfg       `koanf:"retry"`

	PullAliveWindow  time.Duration `koanf:"pull_alive_window"`
	WatchdogInterval time.Duration `koanf:"watchdog_interval"`
	PersistInterval  time.Duration `koanf:"persist_interval"`
	MetadataInterval time.Duration `koanf:"metadata_interval"`
	BackoffSleep     time.Duration `koanf:"backoff_sleep"`

	Workers     int `koanf:"workers"`
	MetricsPort int `koanf:"metrics_port"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges YAML (if present) with env-vars
// (prefix `TRIBUTARY__`, delimiter `__`).
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("engine schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("TRIBUTARY__", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "TRIBUTARY__")), "__", ".")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func ApplyDefaults(c *Config) {
	if c.Topic == "" {
		c.Topic = "TOPIC_DEFAULT"
	}
	if c.Tag == "" {
		c.Tag = "*"
	}
	if c.PullBatchSize == 0 {
		c.PullBatchSize = 32
	}
	if c.DeliverBatchSize == 0 {
		c.DeliverBatchSize = 100
	}
	if c.FlowControl.AccumulationThreshold == 0 {
		c.FlowControl.AccumulationThreshold = 10240
	}
	if c.FlowControl.ResumeThreshold == 0 {
		c.FlowControl.ResumeThreshold = 1024
	}
	if c.FlowControl.SpanThreshold == 0 {
		c.FlowControl.SpanThreshold = 5000
	}
	if c.Retry.PullRedeliveryDelay == 0 {
		c.Retry.PullRedeliveryDelay = 3 * time.Second
	}
	if c.Retry.FetchOffsetAttempts == 0 {
		c.Retry.FetchOffsetAttempts = 5
	}
	if c.Retry.CorrectOffsetAttempts == 0 {
		c.Retry.CorrectOffsetAttempts = 5
	}
	if c.PullAliveWindow == 0 {
		c.PullAliveWindow = 10 * time.Minute
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = time.Minute
	}
	if c.PersistInterval == 0 {
		c.PersistInterval = time.Minute
	}
	if c.MetadataInterval == 0 {
		c.MetadataInterval = 30 * time.Second
	}
	if c.BackoffSleep == 0 {
		c.BackoffSleep = time.Second
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9100
	}
}
