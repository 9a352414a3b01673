package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dd0wney/cluso-pgha/pkg/auth"
	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/config"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/logging"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
	"github.com/dd0wney/cluso-pgha/pkg/repair"
	"github.com/dd0wney/cluso-pgha/pkg/secrets"
	"github.com/dd0wney/cluso-pgha/pkg/trigger"
)

// runtime is everything a command builds from the config once at startup
type runtime struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	secrets *secrets.Store
	journal journal.Journal
	runner  command.Runner

	closeOnce sync.Once
}

// scope picks which config sections must validate
type scope int

const (
	scopeNode scope = iota
	scopePool
)

func newRuntime(ctx context.Context, opts *rootOptions, s scope) (*runtime, error) {
	load := config.Load
	if s == scopePool {
		load = config.LoadForPool
	}
	cfg, err := load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = strings.ToLower(opts.logLevel)
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(level), logging.Format(cfg.Logging.Format))

	sec := secrets.NewStore(cfg.Secrets.Dir, cfg.Secrets.Default)

	j, err := journal.Open(ctx, cfg.Journal, sec)
	if err != nil {
		// The journal is for operators; failover must not depend on it.
		logger.Warn("journal unavailable, events will not be recorded",
			logging.String("backend", cfg.Journal.Backend), logging.Error(err))
		j = journal.Nop{}
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.DefaultRegistry(),
		secrets: sec,
		journal: j,
		runner:  command.NewExecRunner(logger),
	}, nil
}

// Close releases the journal. It is safe to call more than once.
func (rt *runtime) Close() {
	rt.closeOnce.Do(func() {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("failed to close journal", logging.Error(err))
		}
	})
}

// topology resolves this node and its peer from the service name
func (rt *runtime) topology() (cluster.Topology, error) {
	topo, err := cluster.ResolveTopology(rt.cfg.Node.ServiceName, rt.cfg.Node.Port)
	if err != nil {
		return topo, fmt.Errorf("%w: %v", cluster.ErrPermanentConfig, err)
	}
	return topo, nil
}

// poolNodes returns the pair as the pool host addresses them, in backend order
func (rt *runtime) poolNodes() []cluster.Node {
	c := rt.cfg.Cluster
	return []cluster.Node{
		{Name: c.Primary.Name, Host: c.Primary.Host, Port: c.Primary.Port, DeclaredRole: cluster.RolePrimary, PoolIndex: 0},
		{Name: c.Standby.Name, Host: c.Standby.Host, Port: c.Standby.Port, DeclaredRole: cluster.RoleStandby, PoolIndex: 1},
	}
}

// poolNode returns the node at backend index and its twin
func (rt *runtime) poolNode(index int) (node, twin cluster.Node, err error) {
	nodes := rt.poolNodes()
	if index < 0 || index >= len(nodes) {
		return node, twin, fmt.Errorf("%w: backend index %d out of range", cluster.ErrPermanentConfig, index)
	}
	return nodes[index], nodes[1-index], nil
}

func (rt *runtime) prober() *probe.PGProber {
	return probe.NewPGProber(probe.Options{
		Credentials: probe.Credentials{
			User:     rt.cfg.Probe.User,
			Password: rt.secrets.Lookup(rt.cfg.Probe.PasswordSecret),
			Database: rt.cfg.Probe.Database,
			SSLMode:  rt.cfg.Probe.SSLMode,
		},
		Timeout: rt.cfg.Probe.ConnectTimeout,
		Logger:  rt.logger,
		Metrics: rt.metrics,
	})
}

// jwtManager returns nil when no token secret is configured
func (rt *runtime) jwtManager() (*auth.JWTManager, error) {
	name := rt.cfg.Trigger.TokenSecret
	if name == "" {
		return nil, nil
	}
	secret, ok := rt.secrets.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: trigger token secret %s not found", cluster.ErrPermanentConfig, name)
	}
	m, err := auth.NewJWTManager(secret, rt.cfg.Trigger.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cluster.ErrPermanentConfig, err)
	}
	return m, nil
}

func (rt *runtime) triggerClient() (*trigger.Client, error) {
	opts := trigger.ClientOptions{
		PrimaryPort: rt.cfg.Trigger.PrimaryPort,
		StandbyPort: rt.cfg.Trigger.StandbyPort,
		Timeout:     rt.cfg.Trigger.RequestTimeout,
		Logger:      rt.logger,
		Metrics:     rt.metrics,
	}
	m, err := rt.jwtManager()
	if err != nil {
		return nil, err
	}
	if m != nil {
		opts.Issuer = m
	}
	return trigger.NewClient(opts), nil
}

func (rt *runtime) coordinator() *repair.Coordinator {
	p := rt.cfg.Pool
	return repair.NewCoordinator(repair.Options{
		PCP: repair.PCP{
			Host:          p.PCPHost,
			Port:          p.PCPPort,
			User:          p.PCPUser,
			Password:      rt.secrets.Lookup(p.PasswordSecret),
			AttachCommand: p.AttachCommand,
		},
		CommandTimeout: p.CommandTimeout,
		Runner:         rt.runner,
		Prober:         rt.prober(),
		Journal:        rt.journal,
		Logger:         rt.logger,
		Metrics:        rt.metrics,
	})
}

// configArgs forwards --config to child processes
func configArgs(opts *rootOptions) []string {
	if opts.configPath == "" {
		return nil
	}
	return []string{"--config", opts.configPath}
}
