package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

var (
	primaryNode = cluster.Node{Name: "postgresql_master", Host: "postgresql_master", Port: 5432, DeclaredRole: cluster.RolePrimary}
	standbyNode = cluster.Node{Name: "postgresql_slave", Host: "postgresql_slave", Port: 5432, DeclaredRole: cluster.RoleStandby, PoolIndex: 1}
)

// scriptedProber replays results in order and repeats the last one forever.
type scriptedProber struct {
	mu      sync.Mutex
	results []probe.Result
	calls   []time.Time
}

func (s *scriptedProber) Probe(_ context.Context, node cluster.Node) probe.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, time.Now())
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	res.Node = node
	return res
}

func (s *scriptedProber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func down() probe.Result {
	return probe.Down(primaryNode, probe.FailureConnect, errors.New("connection refused"))
}

func broken() probe.Result {
	return probe.Down(primaryNode, probe.FailureQuery, errors.New("query failed"))
}

func up(inRecovery bool) probe.Result {
	return probe.Up(primaryNode, inRecovery)
}
