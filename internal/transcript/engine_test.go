package transcript_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/rehearse/internal/testutil"
	"github.com/jwulff/rehearse/internal/transcript"
)

type events struct {
	mu   sync.Mutex
	list []transcript.Event
}

func (e *events) add(ev transcript.Event) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.mu.Unlock()
}

func (e *events) last() transcript.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list[len(e.list)-1]
}

func TestStartChecksCapability(t *testing.T) {
	for _, want := range []error{transcript.ErrUnsupported, transcript.ErrInsecureContext} {
		rec := &testutil.FakeRecognizer{CheckErr: want}
		e := transcript.New(rec)
		assert.ErrorIs(t, e.Start(), want)
		assert.Equal(t, transcript.StateIdle, e.State())

		starts, _ := rec.Calls()
		assert.Zero(t, starts)
	}
}

func TestStartFailure(t *testing.T) {
	rec := &testutil.FakeRecognizer{StartErr: errors.New("busy")}
	e := transcript.New(rec)
	assert.Error(t, e.Start())
	assert.Equal(t, transcript.StateIdle, e.State())
}

func TestStartTwiceIsNoop(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	e := transcript.New(rec, transcript.WithLocale("en-GB"))
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())

	starts, _ := rec.Calls()
	assert.Equal(t, 1, starts)
	assert.Equal(t, "en-GB", rec.Locale())
}

func TestPartialReplacesAndFinalAppends(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	evs := &events{}
	e := transcript.New(rec, transcript.WithEventHandler(evs.add))
	require.NoError(t, e.Start())

	rec.Emit("", "I have")
	rec.Emit("", "I have five")
	assert.Equal(t, "", e.Committed())
	assert.Equal(t, "I have five", e.Pending())

	rec.Emit("I have five years", "")
	rec.Emit(" of experience ", "in Go")
	assert.Equal(t, "I have five years of experience", e.Committed())
	assert.Equal(t, "in Go", e.Pending())
	assert.Equal(t, "I have five years of experience in Go", e.Text())

	last := evs.last()
	assert.Equal(t, transcript.EventFragment, last.Kind)
	assert.Equal(t, "of experience", last.Final)
	assert.Equal(t, "in Go", last.Pending)
}

func TestErrorMovesToIdle(t *testing.T) {
	// no-speech mid-listen: committed text survives, pending is dropped.
	rec := &testutil.FakeRecognizer{}
	evs := &events{}
	e := transcript.New(rec, transcript.WithEventHandler(evs.add))
	require.NoError(t, e.Start())
	rec.Emit("hello", "wor")

	rec.Fail("no-speech")
	assert.Equal(t, transcript.StateIdle, e.State())
	assert.Equal(t, "hello", e.Committed())
	assert.Equal(t, "", e.Pending())

	last := evs.last()
	assert.Equal(t, transcript.EventError, last.Kind)
	assert.Equal(t, transcript.ErrorNoSpeech, last.Code)

	rec.Emit("ignored", "")
	assert.Equal(t, "hello", e.Committed())
}

func TestEndMovesToIdle(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	e := transcript.New(rec)
	require.NoError(t, e.Start())
	rec.End()
	assert.Equal(t, transcript.StateIdle, e.State())

	require.NoError(t, e.Start(), "can listen again")
	assert.Equal(t, transcript.StateListening, e.State())
}

func TestStaleListenerIgnored(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	e := transcript.New(rec)
	require.NoError(t, e.Start())
	stale := rec.Listener()
	e.Stop()
	require.NoError(t, e.Start())

	stale.OnResult("old", "")
	stale.OnError("network")
	assert.Equal(t, "", e.Committed())
	assert.Equal(t, transcript.StateListening, e.State())
}

func TestStopIsIdempotent(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	e := transcript.New(rec)
	require.NoError(t, e.Start())
	rec.Emit("kept", "dropped")

	e.Stop()
	e.Stop()
	assert.Equal(t, transcript.StateIdle, e.State())
	assert.Equal(t, "kept", e.Committed())
	assert.Equal(t, "", e.Pending())

	_, stops := rec.Calls()
	assert.Equal(t, 1, stops)
}

func TestForceStopReportsError(t *testing.T) {
	rec := &testutil.FakeRecognizer{StopFails: true}
	e := transcript.New(rec)
	require.NoError(t, e.Start())

	assert.ErrorIs(t, e.ForceStop(), testutil.ErrFakeStop)
	assert.Equal(t, transcript.StateIdle, e.State())
}

func TestClearKeepsListening(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	e := transcript.New(rec)
	require.NoError(t, e.Start())
	rec.Emit("abc", "d")

	e.Clear()
	assert.Equal(t, "", e.Text())
	assert.Equal(t, transcript.StateListening, e.State())
}

func TestNormalizeError(t *testing.T) {
	tests := map[string]transcript.ErrorCode{
		"network":             transcript.ErrorNetwork,
		"not-allowed":         transcript.ErrorPermissionDenied,
		"no-speech":           transcript.ErrorNoSpeech,
		"audio-capture":       transcript.ErrorCaptureFailed,
		"service-not-allowed": transcript.ErrorServiceBlocked,
		"aborted":             transcript.ErrorInterrupted,
		"":                    transcript.ErrorInterrupted,
	}
	for raw, want := range tests {
		if got := transcript.NormalizeError(raw); got != want {
			t.Errorf("NormalizeError(%q) = %q, want %q", raw, got, want)
		}
		assert.NotEmpty(t, want.Message())
	}
}
