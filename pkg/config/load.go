package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (PGHA_MONITOR_RETRY_BUDGET, ...)
const EnvPrefix = "PGHA"

// legacyEnv maps the variable names used by the container images this tool
// replaces onto config keys. The PGHA_ form always wins.
var legacyEnv = map[string]string{
	"node.service_name":    "SERVICE_NAME",
	"node.port":            "POSTGRESQL_CLIENT_PORT",
	"cluster.primary.host": "POSTGRES_MASTER",
	"cluster.standby.host": "POSTGRES_SLAVE",
	"probe.user":           "POSTGRES_USER",
	"monitor.retry_budget": "HEALTH_CHECK_MAX_RETRIES",
	"monitor.max_wait":     "MAX_TRY",
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path searches ./pgha.yaml and /etc/pgha/pgha.yaml; a missing file
// is not an error.
func Load(path string) (*Config, error) {
	return load(path, (*Config).Validate)
}

// LoadForPool is Load for commands that run on the pgpool host, where the
// node section is not configured.
func LoadForPool(path string) (*Config, error) {
	return load(path, (*Config).ValidateForPool)
}

func load(path string, check func(*Config) error) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pgha")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pgha")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := check(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// decodeHook extends viper's default hooks so a bare number is read as
// seconds for duration keys. MAX_TRY=10 means ten seconds.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func secondsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(data.(string)))
	if err != nil {
		return data, nil
	}
	return time.Duration(n) * time.Second, nil
}

// Default returns the configuration with every default applied and nothing
// read from files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	normalize(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.service_name", "")
	v.SetDefault("node.port", 5432)
	v.SetDefault("node.data_dir", "/opt/pgsql/data")

	v.SetDefault("cluster.primary.name", "postgresql_master")
	v.SetDefault("cluster.primary.host", "postgresql_master")
	v.SetDefault("cluster.primary.port", 5432)
	v.SetDefault("cluster.standby.name", "postgresql_slave")
	v.SetDefault("cluster.standby.host", "postgresql_slave")
	v.SetDefault("cluster.standby.port", 5432)

	v.SetDefault("probe.user", "postgres")
	v.SetDefault("probe.database", "postgres")
	v.SetDefault("probe.password_secret", "POSTGRES_PASSWORD")
	v.SetDefault("probe.sslmode", "disable")
	v.SetDefault("probe.connect_timeout", 3*time.Second)

	v.SetDefault("monitor.interval", time.Second)
	v.SetDefault("monitor.max_wait", 10*time.Second)
	v.SetDefault("monitor.retry_budget", 10)

	v.SetDefault("trigger.listen_addr", "0.0.0.0")
	v.SetDefault("trigger.primary_port", 10010)
	v.SetDefault("trigger.standby_port", 10011)
	v.SetDefault("trigger.file_name", "postgresql.trigger")
	v.SetDefault("trigger.request_timeout", 5*time.Second)
	v.SetDefault("trigger.token_secret", "")
	v.SetDefault("trigger.token_ttl", time.Minute)

	v.SetDefault("failover.reattach_delay", 15*time.Second)
	v.SetDefault("failover.detach", true)

	v.SetDefault("pool.pcp_host", "localhost")
	v.SetDefault("pool.pcp_port", 9898)
	v.SetDefault("pool.pcp_user", "postgres")
	v.SetDefault("pool.password_secret", "POSTGRES_PASSWORD")
	v.SetDefault("pool.attach_command", "/usr/bin/pcp_attach_node")
	v.SetDefault("pool.command_timeout", 30*time.Second)

	v.SetDefault("bootstrap.basebackup_command", "/usr/bin/pg_basebackup")
	v.SetDefault("bootstrap.initdb_command", "/usr/bin/initdb")
	v.SetDefault("bootstrap.postgres_command", "/usr/bin/postgres")
	v.SetDefault("bootstrap.replication_user", "repuser")
	v.SetDefault("bootstrap.replication_password_secret", "REPLICATION_PASSWORD")
	v.SetDefault("bootstrap.marker_file", "PG_VERSION")
	v.SetDefault("bootstrap.recovery_format", "recovery.conf")
	v.SetDefault("bootstrap.wal_dir", "pg_xlog")
	v.SetDefault("bootstrap.rejoin_diverged", true)

	v.SetDefault("secrets.dir", "/run/secrets")
	v.SetDefault("secrets.default", "postgres")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("journal.backend", "none")
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.lock_timeout", 5*time.Second)
	v.SetDefault("journal.bucket", "")
	v.SetDefault("journal.prefix", "pgha/events/")
	v.SetDefault("journal.region", "")
	v.SetDefault("journal.endpoint", "")
	v.SetDefault("journal.access_key_secret", "")
	v.SetDefault("journal.secret_key_secret", "")
}

func normalize(cfg *Config) {
	cfg.Node.DataDir = filepath.Clean(cfg.Node.DataDir)
	if cfg.Journal.Path != "" {
		cfg.Journal.Path = filepath.Clean(cfg.Journal.Path)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
}
