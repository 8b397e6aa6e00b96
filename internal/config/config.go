// Package config loads the operator configuration from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"jobop/internal/job"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Config holds all configuration values for the operator.
// It is built once by Load and never modified afterwards.
type Config struct {
	// How long a finished pod is kept before it is deleted.
	// Gives the log collector time to read the pod's output.
	PodPreDeleteDelay time.Duration

	// Namespace to watch. Empty means all namespaces.
	WatchNamespace string

	// Path to a kubeconfig file, used when not running in a cluster
	Kubeconfig string

	// HTTP port for health and metrics
	HTTPPort int

	// Maximum number of notifications of each kind (job, pod) handled at once.
	// Pods waiting out PodPreDeleteDelay hold a pod slot, never a job slot.
	HandlerConcurrency int

	// Retry policy for transient handler failures
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxRetries     int

	// Overall dispatch rate limit
	QueueQPS   float64
	QueueBurst int

	// Informer resync period. Zero disables resync.
	ResyncPeriod time.Duration

	LogLevel slog.Level

	// OTLP collector address. Empty disables tracing.
	OTELEndpoint string

	// Values applied to jobs that omit them
	Defaults job.Defaults
}

// keys maps each config key to the environment variable that overrides it.
var keys = map[string]string{
	"pod_pre_delete_delay":  "JO_POD_PRE_DELETE_DELAY",
	"watch_namespace":       "WATCH_NAMESPACE",
	"kubeconfig":            "KUBECONFIG",
	"http_port":             "PORT",
	"handler_concurrency":   "HANDLER_CONCURRENCY",
	"retry_base_delay":      "RETRY_BASE_DELAY",
	"retry_max_delay":       "RETRY_MAX_DELAY",
	"max_retries":           "MAX_RETRIES",
	"queue_qps":             "QUEUE_QPS",
	"queue_burst":           "QUEUE_BURST",
	"resync_period":         "RESYNC_PERIOD",
	"log_level":             "LOG_LEVEL",
	"otel_endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"service_account":       "JOB_SERVICE_ACCOUNT",
	"default_cpu":           "DEFAULT_CPU",
	"default_memory":        "DEFAULT_MEMORY",
	"default_project_mount": "DEFAULT_PROJECT_MOUNT",
	"default_project_claim": "DEFAULT_PROJECT_CLAIM",
	"default_run_as_user":   "DEFAULT_RUN_AS_USER",
	"default_run_as_group":  "DEFAULT_RUN_AS_GROUP",
}

// legacyDelayEnv holds the delay in whole seconds.
const legacyDelayEnv = "JO_POD_PRE_DELETE_DELAY_S"

func setDefaults(v *viper.Viper) {
	d := job.DefaultDefaults()

	v.SetDefault("pod_pre_delete_delay", 5*time.Second)
	v.SetDefault("watch_namespace", "")
	v.SetDefault("kubeconfig", "")
	v.SetDefault("http_port", 8080)
	v.SetDefault("handler_concurrency", 100)
	v.SetDefault("retry_base_delay", time.Second)
	v.SetDefault("retry_max_delay", 5*time.Minute)
	v.SetDefault("max_retries", 10)
	v.SetDefault("queue_qps", 10.0)
	v.SetDefault("queue_burst", 100)
	v.SetDefault("resync_period", 10*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("service_account", d.ServiceAccount)
	v.SetDefault("default_cpu", d.CPU.String())
	v.SetDefault("default_memory", d.Memory.String())
	v.SetDefault("default_project_mount", d.ProjectMount)
	v.SetDefault("default_project_claim", d.ProjectClaim)
	v.SetDefault("default_run_as_user", d.RunAsUser)
	v.SetDefault("default_run_as_group", d.RunAsGroup)
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file. If path is empty,
// jobop.yaml in the current directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("jobop")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	delay := v.GetDuration("pod_pre_delete_delay")
	if os.Getenv(keys["pod_pre_delete_delay"]) == "" && !v.InConfig("pod_pre_delete_delay") {
		if s := os.Getenv(legacyDelayEnv); s != "" {
			secs, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", legacyDelayEnv, err)
			}
			delay = time.Duration(secs) * time.Second
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", v.GetString("log_level"), err)
	}

	cpu, err := resource.ParseQuantity(v.GetString("default_cpu"))
	if err != nil {
		return nil, fmt.Errorf("invalid default_cpu (env: DEFAULT_CPU): %w", err)
	}
	memory, err := resource.ParseQuantity(v.GetString("default_memory"))
	if err != nil {
		return nil, fmt.Errorf("invalid default_memory (env: DEFAULT_MEMORY): %w", err)
	}

	cfg := &Config{
		PodPreDeleteDelay:  delay,
		WatchNamespace:     v.GetString("watch_namespace"),
		Kubeconfig:         v.GetString("kubeconfig"),
		HTTPPort:           v.GetInt("http_port"),
		HandlerConcurrency: v.GetInt("handler_concurrency"),
		RetryBaseDelay:     v.GetDuration("retry_base_delay"),
		RetryMaxDelay:      v.GetDuration("retry_max_delay"),
		MaxRetries:         v.GetInt("max_retries"),
		QueueQPS:           v.GetFloat64("queue_qps"),
		QueueBurst:         v.GetInt("queue_burst"),
		ResyncPeriod:       v.GetDuration("resync_period"),
		LogLevel:           level,
		OTELEndpoint:       strings.TrimSpace(v.GetString("otel_endpoint")),
		Defaults: job.Defaults{
			CPU:            cpu,
			Memory:         memory,
			ProjectMount:   v.GetString("default_project_mount"),
			ProjectClaim:   v.GetString("default_project_claim"),
			RunAsUser:      v.GetInt64("default_run_as_user"),
			RunAsGroup:     v.GetInt64("default_run_as_group"),
			ServiceAccount: v.GetString("service_account"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values the operator cannot run with.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.PodPreDeleteDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.HTTPPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.HandlerConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.RetryBaseDelay, validation.Required),
		validation.Field(&c.RetryMaxDelay, validation.Required, validation.Min(c.RetryBaseDelay)),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.QueueQPS, validation.Required, validation.Min(0.0)),
		validation.Field(&c.QueueBurst, validation.Required, validation.Min(1)),
		validation.Field(&c.ResyncPeriod, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	d := c.Defaults
	err = validation.ValidateStruct(&d,
		validation.Field(&d.ProjectMount, validation.Required),
		validation.Field(&d.ProjectClaim, validation.Required),
		validation.Field(&d.ServiceAccount, validation.Required),
		validation.Field(&d.RunAsUser, validation.Min(int64(0))),
		validation.Field(&d.RunAsGroup, validation.Min(int64(0))),
	)
	if err != nil {
		return fmt.Errorf("invalid defaults: %w", err)
	}
	return nil
}
