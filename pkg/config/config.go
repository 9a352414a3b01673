// Package config builds the immutable runtime configuration once at startup.
// Components receive the sub-struct they need by parameter and never read the
// process environment themselves.
package config

import "time"

// Config is the full configuration of a pgha process
type Config struct {
	Node      NodeConfig      `mapstructure:"node" yaml:"node"`
	Cluster   ClusterConfig   `mapstructure:"cluster" yaml:"cluster"`
	Probe     ProbeConfig     `mapstructure:"probe" yaml:"probe"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	Trigger   TriggerConfig   `mapstructure:"trigger" yaml:"trigger"`
	Failover  FailoverConfig  `mapstructure:"failover" yaml:"failover"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" yaml:"bootstrap"`
	Secrets   SecretsConfig   `mapstructure:"secrets" yaml:"secrets"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
}

// NodeConfig describes the database node this process runs beside
type NodeConfig struct {
	// ServiceName carries the role token (master/slave) the topology is derived from
	ServiceName string `mapstructure:"service_name" yaml:"service_name" validate:"required"`
	Port        int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
}

// Endpoint is a database node as seen from the pool host
type Endpoint struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// ClusterConfig lists the pair in pgpool backend order
type ClusterConfig struct {
	Primary Endpoint `mapstructure:"primary" yaml:"primary"`
	Standby Endpoint `mapstructure:"standby" yaml:"standby"`
}

// ProbeConfig controls the health query session
type ProbeConfig struct {
	User           string        `mapstructure:"user" yaml:"user" validate:"required"`
	Database       string        `mapstructure:"database" yaml:"database" validate:"required"`
	PasswordSecret string        `mapstructure:"password_secret" yaml:"password_secret"`
	SSLMode        string        `mapstructure:"sslmode" yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gt=0"`
}

// MonitorConfig controls peer polling and failure detection
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	MaxWait     time.Duration `mapstructure:"max_wait" yaml:"max_wait" validate:"gt=0"`
	RetryBudget int           `mapstructure:"retry_budget" yaml:"retry_budget" validate:"min=1"`
}

// TriggerConfig controls the promotion endpoint
type TriggerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	PrimaryPort    int           `mapstructure:"primary_port" yaml:"primary_port" validate:"min=1,max=65535"`
	StandbyPort    int           `mapstructure:"standby_port" yaml:"standby_port" validate:"min=1,max=65535,nefield=PrimaryPort"`
	FileName       string        `mapstructure:"file_name" yaml:"file_name" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	// TokenSecret names the shared HS256 secret; empty keeps the endpoint unauthenticated
	TokenSecret string        `mapstructure:"token_secret" yaml:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
}

// PortFor returns the trigger port of a node by its declared role
func (t TriggerConfig) PortFor(primary bool) int {
	if primary {
		return t.PrimaryPort
	}
	return t.StandbyPort
}

// FailoverConfig controls the controller's follow-up scheduling
type FailoverConfig struct {
	ReattachDelay time.Duration `mapstructure:"reattach_delay" yaml:"reattach_delay" validate:"gte=0"`
	// Detach hands the delayed reattach to a child process so it outlives short-lived callers
	Detach bool `mapstructure:"detach" yaml:"detach"`
}

// PoolConfig describes pgpool's PCP management interface
type PoolConfig struct {
	PCPHost        string        `mapstructure:"pcp_host" yaml:"pcp_host" validate:"required"`
	PCPPort        int           `mapstructure:"pcp_port" yaml:"pcp_port" validate:"min=1,max=65535"`
	PCPUser        string        `mapstructure:"pcp_user" yaml:"pcp_user" validate:"required"`
	PasswordSecret string        `mapstructure:"password_secret" yaml:"password_secret"`
	AttachCommand  string        `mapstructure:"attach_command" yaml:"attach_command" validate:"required"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" validate:"gt=0"`
}

// BootstrapConfig controls standby seeding and first-time initialization
type BootstrapConfig struct {
	BaseBackupCommand         string `mapstructure:"basebackup_command" yaml:"basebackup_command" validate:"required"`
	InitDBCommand             string `mapstructure:"initdb_command" yaml:"initdb_command" validate:"required"`
	PostgresCommand           string `mapstructure:"postgres_command" yaml:"postgres_command" validate:"required"`
	ReplicationUser           string `mapstructure:"replication_user" yaml:"replication_user" validate:"required"`
	ReplicationPasswordSecret string `mapstructure:"replication_password_secret" yaml:"replication_password_secret"`
	MarkerFile                string `mapstructure:"marker_file" yaml:"marker_file" validate:"required"`
	RecoveryFormat            string `mapstructure:"recovery_format" yaml:"recovery_format" validate:"oneof=recovery.conf standby.signal"`
	WALDir                    string `mapstructure:"wal_dir" yaml:"wal_dir" validate:"oneof=pg_xlog pg_wal"`
	RejoinDiverged            bool   `mapstructure:"rejoin_diverged" yaml:"rejoin_diverged"`
}

// SecretsConfig locates mounted secrets
type SecretsConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Default string `mapstructure:"default" yaml:"default"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// JournalConfig selects where failover events are recorded
type JournalConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=none memory badger s3"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required_if=Backend badger"`
	// LockTimeout is how long a badger operation waits while another pgha
	// process holds the journal directory.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	Bucket  string `mapstructure:"bucket" yaml:"bucket" validate:"required_if=Backend s3"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
	Region  string `mapstructure:"region" yaml:"region"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeySecret string `mapstructure:"access_key_secret" yaml:"access_key_secret"`
	SecretKeySecret string `mapstructure:"secret_key_secret" yaml:"secret_key_secret"`
}
