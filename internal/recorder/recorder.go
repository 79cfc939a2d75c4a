// Package recorder wraps a platform media encoder bound to the capture
// stream and accumulates the chunks it emits.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/logging"
)

var (
	ErrAlreadyStarted    = errors.New("recorder already started")
	ErrNoLiveResource    = errors.New("no live capture resource")
	ErrUnsupportedFormat = errors.New("no supported recording format")
	ErrInvalidTransition = errors.New("invalid recorder transition")
	ErrStopping          = errors.New("recorder is stopping")
	ErrStopTimeout       = errors.New("encoder did not stop in time")
)

const (
	// DefaultTimeslice is how often the encoder flushes a chunk. Short, so a
	// crash mid-session still leaves a usable partial recording.
	DefaultTimeslice = 250 * time.Millisecond
	// DefaultStopTimeout bounds the wait for the final flush on Stop.
	DefaultStopTimeout = 400 * time.Millisecond
)

// State is the recorder state.
type State string

const (
	StateInactive  State = "inactive"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// StartOptions is passed to Encoder.Start.
type StartOptions struct {
	MIMEType  string
	Timeslice time.Duration
}

// Sink receives encoder callbacks. Each Start gets its own Sink; callbacks
// on a Sink from an earlier recording are ignored.
type Sink interface {
	OnData(data []byte)
	OnStop()
}

// Encoder is the platform media recorder.
type Encoder interface {
	IsTypeSupported(mime string) bool
	Start(resourceID string, opts StartOptions, sink Sink) error
	Pause() error
	Resume() error
	// RequestData asks for any buffered data to be emitted now.
	RequestData() error
	// Stop ends encoding. The encoder emits a final chunk and then calls
	// Sink.OnStop, possibly asynchronously.
	Stop() error
}

// EventKind identifies a recorder event.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventChunk        EventKind = "chunk"
	EventStreamLost   EventKind = "stream_lost"
)

// Event is emitted to the handler registered with WithEventHandler.
type Event struct {
	Kind   EventKind
	State  State
	Chunks int
	Bytes  int
	Track  capture.Track
}

// Recorder is the segment recorder.
type Recorder struct {
	enc         Encoder
	logger      logging.Logger
	timeslice   time.Duration
	stopTimeout time.Duration
	onEvent     func(Event)
	clock       func() time.Time

	mu          sync.Mutex
	state       State
	gen         uint64
	stopping    bool
	stopAck     chan struct{}
	unsubscribe func()
	format      Format
	chunks      [][]byte
	bytes       int
	activeSince time.Time
	elapsed     time.Duration
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(l logging.Logger) Option { return func(r *Recorder) { r.logger = l } }

func WithTimeslice(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeslice = d
		}
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// WithEventHandler registers fn for recorder events. fn is called without
// the recorder lock held and must not block for long.
func WithEventHandler(fn func(Event)) Option { return func(r *Recorder) { r.onEvent = fn } }

// WithClock is for tests.
func WithClock(clock func() time.Time) Option { return func(r *Recorder) { r.clock = clock } }

// New returns an inactive recorder driving enc.
func New(enc Encoder, opts ...Option) *Recorder {
	r := &Recorder{
		enc:         enc,
		logger:      logging.NewNop(),
		timeslice:   DefaultTimeslice,
		stopTimeout: DefaultStopTimeout,
		clock:       time.Now,
		state:       StateInactive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins recording the stream behind b. Chunks and elapsed time from
// an earlier recording are kept until Reset.
func (r *Recorder) Start(b capture.Binding) error {
	r.mu.Lock()
	if r.state != StateInactive || r.stopping {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	if b == nil || !b.Live() {
		r.mu.Unlock()
		return ErrNoLiveResource
	}
	format, ok := Negotiate(r.enc)
	if !ok {
		r.mu.Unlock()
		return ErrUnsupportedFormat
	}

	r.gen++
	gen := r.gen
	opts := StartOptions{MIMEType: format.MIMEType, Timeslice: r.timeslice}
	if err := r.enc.Start(b.ResourceID(), opts, &sink{r: r, gen: gen}); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start encoder: %w", err)
	}
	r.format = format
	r.state = StateRecording
	r.activeSince = r.clock()
	r.unsubscribe = b.OnTrackEnded(func(t capture.Track) { r.streamLost(gen, t) })
	r.mu.Unlock()

	r.logger.Infow("recording started", "resourceId", b.ResourceID(), "format", format.MIMEType)
	r.emit(Event{Kind: EventStateChanged, State: StateRecording})
	return nil
}

// Pause moves recording to paused.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return ErrStopping
	}
	if r.state != StateRecording {
		r.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, r.state)
	}
	if err := r.enc.Pause(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("pause encoder: %w", err)
	}
	r.elapsed += r.clock().Sub(r.activeSince)
	r.state = StatePaused
	r.mu.Unlock()

	r.emit(Event{Kind: EventStateChanged, State: StatePaused})
	return nil
}

// Resume moves paused to recording.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return ErrStopping
	}
	if r.state != StatePaused {
		r.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, r.state)
	}
	if err := r.enc.Resume(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("resume encoder: %w", err)
	}
	r.activeSince = r.clock()
	r.state = StateRecording
	r.mu.Unlock()

	r.emit(Event{Kind: EventStateChanged, State: StateRecording})
	return nil
}

// Stop requests a final flush and waits until the encoder acknowledges the
// stop, the stop timeout elapses or ctx is done. Chunks delivered before
// Stop returns are kept; chunks delivered after are dropped.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return ErrStopping
	}
	if r.state == StateInactive {
		r.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, r.state)
	}
	r.stopping = true
	ack := make(chan struct{})
	r.stopAck = ack
	gen := r.gen
	r.mu.Unlock()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	stopped := r.stopEncoder(true)
	acked := false
	select {
	case <-ack:
		acked = true
	case <-timer.C:
	case <-ctx.Done():
	}
	select {
	case err := <-stopped:
		if err != nil {
			r.logger.Warnw("encoder stop failed", "error", err)
		}
	default:
	}

	r.mu.Lock()
	if r.gen != gen {
		// Force-stopped or stream lost while we waited.
		r.mu.Unlock()
		return nil
	}
	unsub := r.finishLocked()
	chunks := len(r.chunks)
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if !acked {
		r.logger.Warnw("stop not acknowledged in time, resolving anyway", "timeout", r.stopTimeout)
	}
	r.logger.Infow("recording stopped", "chunks", chunks)
	r.emit(Event{Kind: EventStateChanged, State: StateInactive, Chunks: chunks})
	return nil
}

// ForceStop moves the recorder to inactive immediately without waiting for
// a flush. Already-collected chunks are kept.
func (r *Recorder) ForceStop() error {
	r.mu.Lock()
	if r.state == StateInactive && !r.stopping {
		r.mu.Unlock()
		return nil
	}
	unsub := r.finishLocked()
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.emit(Event{Kind: EventStateChanged, State: StateInactive})

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	select {
	case err := <-r.stopEncoder(false):
		if err != nil {
			return fmt.Errorf("force stop encoder: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("force stop encoder: %w", ErrStopTimeout)
	}
}

// stopEncoder stops the encoder on its own goroutine, optionally asking for
// a final flush first. The result arrives on the returned channel; a wedged
// encoder leaves it pending and the goroutine behind.
func (r *Recorder) stopEncoder(flush bool) <-chan error {
	done := make(chan error, 1)
	go func() {
		if flush {
			if err := r.enc.RequestData(); err != nil {
				r.logger.Warnw("final flush request failed", "error", err)
			}
		}
		done <- r.enc.Stop()
	}()
	return done
}

// Reset discards collected chunks. It is only allowed while inactive.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInactive || r.stopping {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, r.state)
	}
	r.chunks = nil
	r.bytes = 0
	r.elapsed = 0
	r.format = Format{}
	return nil
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stopping reports whether a Stop is waiting for its flush.
func (r *Recorder) Stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

// Chunks returns the collected chunks in order. The byte slices must not be
// modified.
func (r *Recorder) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// ChunkCount returns the number of collected chunks.
func (r *Recorder) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Bytes returns the total size of the collected chunks.
func (r *Recorder) Bytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Format returns the format negotiated by the last Start.
func (r *Recorder) Format() Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// Elapsed returns recorded time, excluding pauses.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return r.elapsed + r.clock().Sub(r.activeSince)
	}
	return r.elapsed
}

// finishLocked moves to inactive and invalidates every outstanding sink.
// It returns the track subscription to cancel once the lock is released.
func (r *Recorder) finishLocked() func() {
	if r.state == StateRecording {
		r.elapsed += r.clock().Sub(r.activeSince)
	}
	r.state = StateInactive
	r.gen++
	r.stopping = false
	if r.stopAck != nil {
		close(r.stopAck)
		r.stopAck = nil
	}
	unsub := r.unsubscribe
	r.unsubscribe = nil
	return unsub
}

func (r *Recorder) streamLost(gen uint64, t capture.Track) {
	r.mu.Lock()
	if gen != r.gen || r.state == StateInactive {
		r.mu.Unlock()
		return
	}
	unsub := r.finishLocked()
	chunks := len(r.chunks)
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.logger.Warnw("capture stream lost while recording", "trackId", t.ID, "kind", t.Kind, "chunks", chunks)
	if err := r.enc.Stop(); err != nil {
		r.logger.Warnw("encoder stop after stream loss failed", "error", err)
	}
	r.emit(Event{Kind: EventStreamLost, State: StateInactive, Chunks: chunks, Track: t})
}

func (r *Recorder) data(gen uint64, data []byte) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.logger.Debugw("dropping chunk delivered after stop resolved", "bytes", len(data))
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	r.chunks = append(r.chunks, buf)
	r.bytes += len(buf)
	n, total := len(r.chunks), r.bytes
	r.mu.Unlock()

	r.emit(Event{Kind: EventChunk, Chunks: n, Bytes: total})
}

func (r *Recorder) stopped(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	if r.stopping {
		if r.stopAck != nil {
			close(r.stopAck)
			r.stopAck = nil
		}
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	// The encoder stopped on its own; recording cannot continue.
	r.streamLost(gen, capture.Track{})
}

func (r *Recorder) emit(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

type sink struct {
	r   *Recorder
	gen uint64
}

func (s *sink) OnData(data []byte) { s.r.data(s.gen, data) }
func (s *sink) OnStop()            { s.r.stopped(s.gen) }
