// Package testutil provides in-memory stand-ins for the capture daemon so
// the core packages can be tested without hardware.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/recorder"
	"github.com/jwulff/rehearse/internal/transcript"
)

// FakeStream is a capture stream with one video and one audio track.
type FakeStream struct {
	id string

	mu      sync.Mutex
	tracks  []capture.Track
	stopped map[string]int
	subs    map[int]func(string)
	nextSub int
	StopErr error
}

// NewFakeStream returns a stream with tracks "<id>-video" and "<id>-audio".
func NewFakeStream(id string) *FakeStream {
	return &FakeStream{
		id: id,
		tracks: []capture.Track{
			{ID: id + "-video", Kind: capture.TrackVideo, Status: capture.TrackLive},
			{ID: id + "-audio", Kind: capture.TrackAudio, Status: capture.TrackLive},
		},
		stopped: make(map[string]int),
		subs:    make(map[int]func(string)),
	}
}

func (s *FakeStream) ID() string { return s.id }

func (s *FakeStream) Tracks() []capture.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capture.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *FakeStream) StopTrack(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped[id]++
	for i := range s.tracks {
		if s.tracks[i].ID == id {
			s.tracks[i].Status = capture.TrackEnded
		}
	}
	return s.StopErr
}

func (s *FakeStream) OnTrackEnded(fn func(trackID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// EndTrack simulates the platform ending a track (device unplugged).
func (s *FakeStream) EndTrack(id string) {
	s.mu.Lock()
	for i := range s.tracks {
		if s.tracks[i].ID == id {
			s.tracks[i].Status = capture.TrackEnded
		}
	}
	var fns []func(string)
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// Stopped returns how many times StopTrack was called for id.
func (s *FakeStream) Stopped(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped[id]
}

// AllStopped reports whether every track was stopped at least once.
func (s *FakeStream) AllStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if s.stopped[t.ID] == 0 {
			return false
		}
	}
	return true
}

// FakeSource hands out FakeStreams.
type FakeSource struct {
	// Err fails every non-minimal Open.
	Err error
	// ProbeErr fails every minimal (verification) Open.
	ProbeErr error
	// Block, when non-nil, makes Open wait for a receive or for ctx.
	Block chan struct{}

	mu       sync.Mutex
	n        int
	streams  []*FakeStream
	probes   []*FakeStream
	profiles []capture.Profile
}

func (s *FakeSource) Open(ctx context.Context, p capture.Profile) (capture.Stream, error) {
	s.mu.Lock()
	s.profiles = append(s.profiles, p)
	block := s.Block
	s.mu.Unlock()

	if block != nil && !p.Minimal {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Minimal {
		if s.ProbeErr != nil {
			return nil, s.ProbeErr
		}
	} else if s.Err != nil {
		return nil, s.Err
	}
	s.n++
	st := NewFakeStream(fmt.Sprintf("stream-%d", s.n))
	if p.Minimal {
		s.probes = append(s.probes, st)
	} else {
		s.streams = append(s.streams, st)
	}
	return st, nil
}

// Streams returns the non-probe streams opened so far.
func (s *FakeSource) Streams() []*FakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeStream(nil), s.streams...)
}

// Probes returns the verification streams opened so far.
func (s *FakeSource) Probes() []*FakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeStream(nil), s.probes...)
}

// Profiles returns every profile passed to Open.
func (s *FakeSource) Profiles() []capture.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Profile(nil), s.profiles...)
}

// LiveCount returns the number of opened streams with a track not stopped.
func (s *FakeSource) LiveCount() int {
	n := 0
	for _, st := range append(s.Streams(), s.Probes()...) {
		if !st.AllStopped() {
			n++
		}
	}
	return n
}

// Last returns the most recent non-probe stream, or nil.
func (s *FakeSource) Last() *FakeStream {
	st := s.Streams()
	if len(st) == 0 {
		return nil
	}
	return st[len(st)-1]
}

// FakeEncoder is an in-memory recorder.Encoder. Chunks are pushed by the
// test with Emit.
type FakeEncoder struct {
	// Supported lists accepted MIME types. Nil accepts every type.
	Supported map[string]bool
	// FinalChunk, when non-nil, is delivered on Stop before OnStop.
	FinalChunk []byte
	// NoAck suppresses the OnStop acknowledgement.
	NoAck    bool
	StartErr error
	// Block, when non-nil, makes RequestData and Stop wait until it is
	// closed, as a wedged encoder would.
	Block chan struct{}

	mu       sync.Mutex
	sink     recorder.Sink
	opts     recorder.StartOptions
	resource string
	starts   int
	pauses   int
	resumes  int
	flushes  int
	stops    int
}

func (e *FakeEncoder) IsTypeSupported(mime string) bool {
	if e.Supported == nil {
		return true
	}
	return e.Supported[mime]
}

func (e *FakeEncoder) Start(resourceID string, opts recorder.StartOptions, sink recorder.Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.starts++
	e.sink = sink
	e.opts = opts
	e.resource = resourceID
	return nil
}

func (e *FakeEncoder) Pause() error {
	e.mu.Lock()
	e.pauses++
	e.mu.Unlock()
	return nil
}

func (e *FakeEncoder) Resume() error {
	e.mu.Lock()
	e.resumes++
	e.mu.Unlock()
	return nil
}

func (e *FakeEncoder) RequestData() error {
	if e.Block != nil {
		<-e.Block
	}
	e.mu.Lock()
	e.flushes++
	e.mu.Unlock()
	return nil
}

// Stop delivers FinalChunk and then acknowledges, unless NoAck is set. Both
// happen synchronously.
func (e *FakeEncoder) Stop() error {
	if e.Block != nil {
		<-e.Block
	}
	e.mu.Lock()
	e.stops++
	sink := e.sink
	final := e.FinalChunk
	ack := !e.NoAck
	e.mu.Unlock()

	if sink == nil {
		return nil
	}
	if final != nil {
		sink.OnData(final)
	}
	if ack {
		sink.OnStop()
	}
	return nil
}

// Emit delivers data on the current sink.
func (e *FakeEncoder) Emit(data []byte) {
	if s := e.Sink(); s != nil {
		s.OnData(data)
	}
}

// Sink returns the sink passed to the last Start.
func (e *FakeEncoder) Sink() recorder.Sink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink
}

// Options returns the options passed to the last Start.
func (e *FakeEncoder) Options() recorder.StartOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Resource returns the resource ID passed to the last Start.
func (e *FakeEncoder) Resource() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resource
}

// Calls returns call counts for start, pause, resume, flush and stop.
func (e *FakeEncoder) Calls() (starts, pauses, resumes, flushes, stops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts, e.pauses, e.resumes, e.flushes, e.stops
}

// ErrFakeStop is returned by FakeRecognizer.Stop when StopFails is set.
var ErrFakeStop = errors.New("fake recognizer stop failed")

// FakeRecognizer is an in-memory transcript.Recognizer.
type FakeRecognizer struct {
	CheckErr  error
	StartErr  error
	StopFails bool

	mu       sync.Mutex
	listener transcript.Listener
	locale   string
	starts   int
	stops    int
}

func (r *FakeRecognizer) Check() error { return r.CheckErr }

func (r *FakeRecognizer) Start(locale string, l transcript.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.starts++
	r.listener = l
	r.locale = locale
	return nil
}

func (r *FakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.StopFails {
		return ErrFakeStop
	}
	return nil
}

// Listener returns the listener passed to the last Start.
func (r *FakeRecognizer) Listener() transcript.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

// Emit delivers a result on the current listener.
func (r *FakeRecognizer) Emit(final, partial string) {
	if l := r.Listener(); l != nil {
		l.OnResult(final, partial)
	}
}

// Fail delivers a raw error code on the current listener.
func (r *FakeRecognizer) Fail(code string) {
	if l := r.Listener(); l != nil {
		l.OnError(code)
	}
}

// End signals the end of listening on the current listener.
func (r *FakeRecognizer) End() {
	if l := r.Listener(); l != nil {
		l.OnEnd()
	}
}

// Locale returns the locale passed to the last Start.
func (r *FakeRecognizer) Locale() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locale
}

// Calls returns start and stop counts.
func (r *FakeRecognizer) Calls() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}
