package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgha.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5432, cfg.Node.Port)
	assert.Equal(t, "/opt/pgsql/data", cfg.Node.DataDir)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.MaxWait)
	assert.Equal(t, 10, cfg.Monitor.RetryBudget)
	assert.Equal(t, 10010, cfg.Trigger.PrimaryPort)
	assert.Equal(t, 10011, cfg.Trigger.StandbyPort)
	assert.Equal(t, "postgresql.trigger", cfg.Trigger.FileName)
	assert.Equal(t, 15*time.Second, cfg.Failover.ReattachDelay)
	assert.Equal(t, "localhost", cfg.Pool.PCPHost)
	assert.Equal(t, 9898, cfg.Pool.PCPPort)
	assert.Equal(t, "PG_VERSION", cfg.Bootstrap.MarkerFile)
	assert.True(t, cfg.Bootstrap.RejoinDiverged)
	assert.Equal(t, "/run/secrets", cfg.Secrets.Dir)
	assert.Equal(t, "postgres", cfg.Secrets.Default)
	assert.Equal(t, "none", cfg.Journal.Backend)

	// Service name has no default, so a node config is not valid yet.
	assert.Error(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateForPool())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
node:
  service_name: pg_master_1
  data_dir: /var/lib/pg/data/
monitor:
  interval: 500ms
  max_wait: 4s
  retry_budget: 3
trigger:
  primary_port: 20010
failover:
  reattach_delay: 2s
  detach: false
logging:
  level: DEBUG
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pg_master_1", cfg.Node.ServiceName)
	assert.Equal(t, "/var/lib/pg/data", cfg.Node.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 4*time.Second, cfg.Monitor.MaxWait)
	assert.Equal(t, 3, cfg.Monitor.RetryBudget)
	assert.Equal(t, 20010, cfg.Trigger.PrimaryPort)
	assert.Equal(t, 10011, cfg.Trigger.StandbyPort)
	assert.Equal(t, 2*time.Second, cfg.Failover.ReattachDelay)
	assert.False(t, cfg.Failover.Detach)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, "node:\n  service_name: from_file_master\n")

	t.Setenv("PGHA_MONITOR_RETRY_BUDGET", "7")
	t.Setenv("PGHA_POOL_PCP_PORT", "19898")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from_file_master", cfg.Node.ServiceName)
	assert.Equal(t, 7, cfg.Monitor.RetryBudget)
	assert.Equal(t, 19898, cfg.Pool.PCPPort)
}

func TestLoad_LegacyEnv(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("SERVICE_NAME", "db_slave")
	t.Setenv("POSTGRESQL_CLIENT_PORT", "6432")
	t.Setenv("POSTGRES_MASTER", "10.0.0.1")
	t.Setenv("POSTGRES_SLAVE", "10.0.0.2")
	t.Setenv("HEALTH_CHECK_MAX_RETRIES", "4")
	t.Setenv("MAX_TRY", "30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db_slave", cfg.Node.ServiceName)
	assert.Equal(t, 6432, cfg.Node.Port)
	assert.Equal(t, "10.0.0.1", cfg.Cluster.Primary.Host)
	assert.Equal(t, "10.0.0.2", cfg.Cluster.Standby.Host)
	assert.Equal(t, 4, cfg.Monitor.RetryBudget)
	assert.Equal(t, 30*time.Second, cfg.Monitor.MaxWait, "MAX_TRY counts seconds")
}

func TestLoad_DurationForms(t *testing.T) {
	path := writeConfig(t, "node: {service_name: a_master}\nfailover: {reattach_delay: \"20\"}\n")

	t.Setenv("PGHA_MONITOR_MAX_WAIT", "1m30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.Failover.ReattachDelay)
	assert.Equal(t, 90*time.Second, cfg.Monitor.MaxWait)
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("SERVICE_NAME", "legacy_master")
	t.Setenv("PGHA_NODE_SERVICE_NAME", "new_slave")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new_slave", cfg.Node.ServiceName)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "zero retry budget",
			body:    "node: {service_name: a_master}\nmonitor: {retry_budget: 0}\n",
			wantMsg: "RetryBudget",
		},
		{
			name:    "port out of range",
			body:    "node: {service_name: a_master, port: 70000}\n",
			wantMsg: "must not exceed 65535",
		},
		{
			name:    "same trigger ports",
			body:    "node: {service_name: a_master}\ntrigger: {primary_port: 9000, standby_port: 9000}\n",
			wantMsg: "must differ from PrimaryPort",
		},
		{
			name:    "unknown journal backend",
			body:    "node: {service_name: a_master}\njournal: {backend: etcd}\n",
			wantMsg: "must be one of",
		},
		{
			name:    "badger without path",
			body:    "node: {service_name: a_master}\njournal: {backend: badger}\n",
			wantMsg: "field is required",
		},
		{
			name:    "max wait shorter than interval",
			body:    "node: {service_name: a_master}\nmonitor: {interval: 5s, max_wait: 1s}\n",
			wantMsg: "must not be shorter",
		},
		{
			name:    "bad recovery format",
			body:    "node: {service_name: a_master}\nbootstrap: {recovery_format: postgresql.auto.conf}\n",
			wantMsg: "RecoveryFormat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, cluster.ErrPermanentConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestTriggerConfig_PortFor(t *testing.T) {
	tc := TriggerConfig{PrimaryPort: 1, StandbyPort: 2}
	assert.Equal(t, 1, tc.PortFor(true))
	assert.Equal(t, 2, tc.PortFor(false))
}

func TestWriteYAML(t *testing.T) {
	cfg := Default()
	cfg.Node.ServiceName = "pg_master"

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))

	out := buf.String()
	assert.Contains(t, out, "service_name: pg_master")
	assert.Contains(t, out, "reattach_delay: 15s")
	assert.Contains(t, out, "password_secret: POSTGRES_PASSWORD")

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, cfg.Monitor, back.Monitor)
	assert.Equal(t, cfg.Trigger.PrimaryPort, back.Trigger.PrimaryPort)
}

func TestLoadForPool_NoNodeSection(t *testing.T) {
	path := writeConfig(t, "pool: {pcp_host: pgpool}\n")

	_, err := Load(path)
	require.Error(t, err, "node.service_name is required on a node")

	cfg, err := LoadForPool(path)
	require.NoError(t, err)
	assert.Equal(t, "pgpool", cfg.Pool.PCPHost)

	_, err = LoadForPool(writeConfig(t, "monitor: {interval: 5s, max_wait: 1s}\n"))
	assert.ErrorIs(t, err, cluster.ErrPermanentConfig)
}
