package repair

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/command"
	"github.com/dd0wney/cluso-pgha/pkg/metrics"
)

type countingReattacher struct {
	mu    sync.Mutex
	nodes []cluster.Node
	at    []time.Time
}

func (c *countingReattacher) Reattach(_ context.Context, node cluster.Node) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, node)
	c.at = append(c.at, time.Now())
	return Result{Node: node, Attached: true}
}

func (c *countingReattacher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

func TestTimerScheduler_FiresOnceAfterDelay(t *testing.T) {
	r := &countingReattacher{}
	results := make(chan Result, 2)
	s := NewTimerScheduler(context.Background(), r, func(res Result) { results <- res }, nil, nil)

	start := time.Now()
	req := cluster.NewReattachRequest(failedPrimary, 50*time.Millisecond, start)
	require.NoError(t, s.Schedule(req))
	assert.Equal(t, 1, s.Pending())
	assert.Error(t, s.Schedule(req), "same request twice")

	select {
	case res := <-results:
		assert.True(t, res.Attached)
	case <-time.After(2 * time.Second):
		t.Fatal("reattach never fired")
	}

	assert.GreaterOrEqual(t, r.at[0].Sub(start), 50*time.Millisecond)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, s.Stop())
	assert.Equal(t, 1, r.count())
}

func TestTimerScheduler_StopCancelsPending(t *testing.T) {
	r := &countingReattacher{}
	s := NewTimerScheduler(context.Background(), r, nil, nil, nil)

	require.NoError(t, s.Schedule(cluster.NewReattachRequest(failedPrimary, time.Hour, time.Now())))
	assert.Equal(t, 1, s.Stop())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, r.count())
}

func TestTimerScheduler_PastDueFiresImmediately(t *testing.T) {
	r := &countingReattacher{}
	done := make(chan struct{})
	s := NewTimerScheduler(context.Background(), r, func(Result) { close(done) }, nil, nil)

	require.NoError(t, s.Schedule(cluster.NewReattachRequest(failedPrimary, time.Second, time.Now().Add(-time.Minute))))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("past-due request did not fire")
	}
}

func TestProcessScheduler(t *testing.T) {
	rec := &command.Recorder{}
	reg := metrics.NewRegistry()
	s, err := NewProcessScheduler(rec, "/usr/local/bin/pgha", []string{"--config", "/etc/pgha.yaml"}, nil, reg)
	require.NoError(t, err)

	req := cluster.NewReattachRequest(failedPrimary, 15*time.Second, time.Now())
	require.NoError(t, s.Schedule(req))

	started := rec.Started()
	require.Len(t, started, 1)
	cmd := started[0]
	assert.Equal(t, "/usr/local/bin/pgha", cmd.Path)
	require.Len(t, cmd.Args, 7)
	assert.Equal(t, []string{"repair", "--index", "0", "--delay"}, cmd.Args[:4])
	d, err := time.ParseDuration(cmd.Args[4])
	require.NoError(t, err)
	assert.InDelta(t, 15*time.Second, d, float64(time.Second))
	assert.Equal(t, []string{"--config", "/etc/pgha.yaml"}, cmd.Args[5:])
	assert.Empty(t, rec.Calls(), "the scheduler never waits on the child")
	assert.Equal(t, 1.0, counter(t, reg.ReattachScheduledTotal.WithLabelValues("process")))
}
