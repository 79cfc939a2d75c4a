package cleanup

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/rehearse/internal/logging"
)

func TestTriggerRunsEveryStepInOrder(t *testing.T) {
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func() error {
			order = append(order, name)
			return err
		}}
	}
	boom := errors.New("boom")
	s := New(logging.NewNop(),
		step("recorder", boom),
		Step{Name: "device", Run: func() error {
			order = append(order, "device")
			panic("device gone")
		}},
		step("transcript", nil),
		step("flags", nil),
	)

	report := s.Emergency()
	assert.Equal(t, []string{"recorder", "device", "transcript", "flags"}, order)
	assert.Equal(t, ReasonEmergency, report.Reason)
	assert.False(t, report.OK())
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "recorder", report.Failures[0].Step)
	assert.ErrorIs(t, report.Failures[0].Err, boom)
	assert.Equal(t, "device", report.Failures[1].Step)
	assert.Contains(t, report.Failures[1].Err.Error(), "device gone")
}

func TestTriggerAbandonsHungStep(t *testing.T) {
	hung := make(chan struct{})
	defer close(hung)
	released := false
	s := New(nil,
		Step{Name: "recorder", Timeout: 50 * time.Millisecond, Run: func() error {
			<-hung
			return nil
		}},
		Step{Name: "device", Run: func() error { released = true; return nil }},
	)

	start := time.Now()
	report := s.Emergency()
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, released, "steps after a hung step should still run")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "recorder", report.Failures[0].Step)
	assert.ErrorIs(t, report.Failures[0].Err, ErrStepTimeout)
}

func TestTriggerIsRepeatable(t *testing.T) {
	calls := 0
	s := New(nil, Step{Name: "count", Run: func() error { calls++; return nil }})

	assert.True(t, s.Hidden().OK())
	assert.True(t, s.Unloading().OK())
	assert.True(t, s.Trigger(ReasonReset).OK())

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, s.Runs())
	assert.Equal(t, ReasonReset, s.Last().Reason)
}

func TestWatchTriggersUnloadingOnSignal(t *testing.T) {
	calls := 0
	s := New(nil, Step{Name: "release", Run: func() error { calls++; return nil }})

	ch := make(chan os.Signal, 1)
	ch <- syscall.SIGHUP
	var got os.Signal
	s.watch(context.Background(), ch, func(sig os.Signal) { got = sig })

	assert.Equal(t, syscall.SIGHUP, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ReasonUnloading, s.Last().Reason)
}

func TestWatchReturnsOnCancel(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, nil)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	assert.Zero(t, s.Runs())
}
