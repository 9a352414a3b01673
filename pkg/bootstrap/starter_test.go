package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/monitor"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

type fakeSyncer struct {
	calls   int
	sources []cluster.Node
	err     error
}

func (f *fakeSyncer) SyncFromPeer(_ context.Context, source cluster.Node, target string) error {
	f.calls++
	f.sources = append(f.sources, source)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(target, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(target, "PG_VERSION"), []byte("9.6\n"), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(target, "recovery.conf"), nil, 0o600)
}

type fakeInitializer struct{ calls int }

func (f *fakeInitializer) Initialize(_ context.Context, dir string) error {
	f.calls++
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "PG_VERSION"), []byte("9.6\n"), 0o600)
}

type fakeEngine struct{ started []string }

func (f *fakeEngine) Start(_ context.Context, dir string) error {
	f.started = append(f.started, dir)
	return nil
}

func peerPrimary() probe.Prober {
	return probe.Func(func(_ context.Context, n cluster.Node) probe.Result { return probe.Up(n, false) })
}

func peerStandby() probe.Prober {
	return probe.Func(func(_ context.Context, n cluster.Node) probe.Result { return probe.Up(n, true) })
}

func peerDown() probe.Prober {
	return probe.Func(func(_ context.Context, n cluster.Node) probe.Result {
		return probe.Down(n, probe.FailureConnect, errors.New("connection refused"))
	})
}

type starterFixture struct {
	dataDir string
	syncer  *fakeSyncer
	init    *fakeInitializer
	engine  *fakeEngine
	journal *journal.Memory
}

func newStarter(t *testing.T, self, peer cluster.Node, ha bool, p probe.Prober, rejoin bool) (*Starter, *starterFixture) {
	t.Helper()
	fx := &starterFixture{
		dataDir: filepath.Join(t.TempDir(), "data"),
		syncer:  &fakeSyncer{},
		init:    &fakeInitializer{},
		engine:  &fakeEngine{},
		journal: journal.NewMemory(),
	}
	s := NewStarter(StarterOptions{
		Topology:       cluster.Topology{Self: self, Peer: peer, HAEnabled: ha},
		DataDir:        fx.dataDir,
		Prober:         p,
		MaxWait:        40 * time.Millisecond,
		WaitInterval:   10 * time.Millisecond,
		Syncer:         fx.syncer,
		Initializer:    fx.init,
		Engine:         fx.engine,
		RejoinDiverged: rejoin,
		Journal:        fx.journal,
		Now:            func() time.Time { return time.Unix(1767225600, 0) },
	})
	return s, fx
}

func writeMarker(t *testing.T, dir string, recovery bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PG_VERSION"), []byte("9.6\n"), 0o600))
	if recovery {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "recovery.conf"), nil, 0o600))
	}
}

func TestStarter_Decisions(t *testing.T) {
	tests := []struct {
		name     string
		self     cluster.Node
		peer     cluster.Node
		ha       bool
		prober   probe.Prober
		marker   bool
		recovery bool

		wantPeer   monitor.Outcome
		wantAction Action
		wantRole   cluster.Role
		wantErr    error
	}{
		{name: "standalone without data initializes", self: masterNode, peer: masterNode, ha: false, wantPeer: monitor.TimedOut, wantAction: ActionInitialize, wantRole: cluster.RolePrimary},
		{name: "standalone with data starts", self: masterNode, peer: masterNode, ha: false, marker: true, wantPeer: monitor.TimedOut, wantAction: ActionStart, wantRole: cluster.RolePrimary},
		{name: "fresh standby syncs from primary peer", self: slaveNode, peer: masterNode, ha: true, prober: peerPrimary(), wantPeer: monitor.PeerUpPrimary, wantAction: ActionSync, wantRole: cluster.RoleStandby},
		{name: "existing standby restarts", self: slaveNode, peer: masterNode, ha: true, prober: peerPrimary(), marker: true, recovery: true, wantPeer: monitor.PeerUpPrimary, wantAction: ActionStart, wantRole: cluster.RoleStandby},
		{name: "diverged former primary rejoins", self: masterNode, peer: slaveNode, ha: true, prober: peerPrimary(), marker: true, wantPeer: monitor.PeerUpPrimary, wantAction: ActionRejoin, wantRole: cluster.RoleStandby},
		{name: "fresh primary with standby peer initializes", self: masterNode, peer: slaveNode, ha: true, prober: peerStandby(), wantPeer: monitor.PeerUpStandby, wantAction: ActionInitialize, wantRole: cluster.RolePrimary},
		{name: "primary with data and standby peer starts", self: masterNode, peer: slaveNode, ha: true, prober: peerStandby(), marker: true, wantPeer: monitor.PeerUpStandby, wantAction: ActionStart, wantRole: cluster.RolePrimary},
		{name: "fresh primary with absent peer initializes", self: masterNode, peer: slaveNode, ha: true, prober: peerDown(), wantPeer: monitor.TimedOut, wantAction: ActionInitialize, wantRole: cluster.RolePrimary},
		{name: "promoted standby restarts alone", self: slaveNode, peer: masterNode, ha: true, prober: peerDown(), marker: true, wantPeer: monitor.TimedOut, wantAction: ActionStart, wantRole: cluster.RolePrimary},
		{name: "fresh standby with absent peer is fatal", self: slaveNode, peer: masterNode, ha: true, prober: peerDown(), wantPeer: monitor.TimedOut, wantErr: cluster.ErrNoPeerForBootstrap},
		{name: "fresh standby with standby peer is fatal", self: slaveNode, peer: masterNode, ha: true, prober: peerStandby(), wantPeer: monitor.PeerUpStandby, wantErr: cluster.ErrNoPeerForBootstrap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fx := newStarter(t, tt.self, tt.peer, tt.ha, tt.prober, true)
			if tt.marker {
				writeMarker(t, fx.dataDir, tt.recovery)
			}

			plan, err := s.Run(context.Background())
			assert.Equal(t, tt.wantPeer, plan.Peer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, fx.engine.started, "never hands off after a fatal decision")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, plan.Action)
			assert.Equal(t, tt.wantRole, plan.Role)
			assert.Equal(t, []string{fx.dataDir}, fx.engine.started)
			assert.FileExists(t, filepath.Join(fx.dataDir, "PG_VERSION"))
		})
	}
}

func TestStarter_SyncsFromPeerNode(t *testing.T) {
	s, fx := newStarter(t, slaveNode, masterNode, true, peerPrimary(), false)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []cluster.Node{masterNode}, fx.syncer.sources)
	assert.Equal(t, 0, fx.init.calls)
}

func TestStarter_RejoinMovesDataAside(t *testing.T) {
	s, fx := newStarter(t, masterNode, slaveNode, true, peerPrimary(), true)
	writeMarker(t, fx.dataDir, false)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dataDir, "old-wal"), []byte("x"), 0o600))

	plan, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fx.dataDir+".diverged-1767225600", plan.DivergedPath)
	assert.FileExists(t, filepath.Join(plan.DivergedPath, "old-wal"))
	assert.NoFileExists(t, filepath.Join(fx.dataDir, "old-wal"))
	assert.Equal(t, 1, fx.syncer.calls)

	events, err := fx.journal.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, journal.KindBootstrap, events[0].Kind)
	assert.Equal(t, "rejoin", events[0].Details["action"])
	assert.Equal(t, plan.DivergedPath, events[0].Details["diverged_path"])
}

func TestStarter_DivergedWithoutRejoinIsFatal(t *testing.T) {
	s, fx := newStarter(t, masterNode, slaveNode, true, peerPrimary(), false)
	writeMarker(t, fx.dataDir, false)

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, cluster.ErrDivergedPrimary)
	assert.Equal(t, 0, fx.syncer.calls)
	assert.FileExists(t, filepath.Join(fx.dataDir, "PG_VERSION"), "data is left untouched")
}

func TestStarter_SyncFailureStopsStartup(t *testing.T) {
	s, fx := newStarter(t, slaveNode, masterNode, true, peerPrimary(), false)
	fx.syncer.err = cluster.ErrPartialBootstrap

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, cluster.ErrPartialBootstrap)
	assert.Empty(t, fx.engine.started)

	events, _ := fx.journal.List(context.Background(), 0)
	require.Len(t, events, 1)
	assert.Equal(t, "failed", events[0].Outcome)
}
