package daemon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/recorder"
	"github.com/jwulff/rehearse/internal/transcript"
)

// Platform adapts the capture daemon to capture.Source, capture.Surface,
// recorder.Encoder and transcript.Recognizer. It holds a command connection and an event
// subscription, and routes each event to the acquisition, recording or
// listen it belongs to.
type Platform struct {
	cmd     *Client
	ev      *Client
	logger  logging.Logger
	timeout time.Duration
	caps    Response
	done    chan struct{}

	mu        sync.Mutex
	streams   map[string]*stream
	recID     string
	sink      recorder.Sink
	listenID  string
	listener  transcript.Listener
	readErr   error
	closed    bool
	closeOnce sync.Once
}

// DefaultCommandTimeout bounds each command sent once Dial has returned.
const DefaultCommandTimeout = 2 * time.Second

// Option configures a Platform.
type Option func(*Platform)

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(p *Platform) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Dial connects to the daemon at socketPath, subscribes to its events and
// loads its capabilities.
func Dial(ctx context.Context, socketPath string, logger logging.Logger, opts ...Option) (*Platform, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cmd, err := Connect(socketPath)
	if err != nil {
		return nil, err
	}
	ev, err := Connect(socketPath)
	if err != nil {
		cmd.Close()
		return nil, err
	}
	p := newPlatform(cmd, ev, logger)
	for _, opt := range opts {
		opt(p)
	}

	if _, err := ev.Do(ctx, Command{Cmd: CmdSubscribe, Events: []string{
		EvChunk, EvRecordStopped, EvTrackEnded, EvTranscript, EvRecognitionError, EvListenEnded,
	}}); err != nil {
		p.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	caps, err := cmd.Do(ctx, Command{Cmd: CmdCapabilities})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	p.caps = caps

	go p.readLoop()
	logger.Infow("connected to capture daemon", "socket", socketPath, "version", caps.Version,
		"devices", len(caps.Devices), "mimeTypes", caps.MIMETypes)
	return p, nil
}

func newPlatform(cmd, ev *Client, logger logging.Logger) *Platform {
	return &Platform{
		cmd:     cmd,
		ev:      ev,
		logger:  logger,
		timeout: DefaultCommandTimeout,
		done:    make(chan struct{}),
		streams: make(map[string]*stream),
	}
}

// Capabilities returns what the daemon reported on connect.
func (p *Platform) Capabilities() Response { return p.caps }

// Done is closed when the event subscription ends.
func (p *Platform) Done() <-chan struct{} { return p.done }

// Err returns why the event subscription ended, if it has.
func (p *Platform) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// Close drops both connections. The event reader exits on its own; Done
// reports when it has.
func (p *Platform) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		err = errors.Join(p.cmd.Close(), p.ev.Close())
	})
	return err
}

// do sends cmd on the command connection, bounded by the command timeout
// as well as ctx.
func (p *Platform) do(ctx context.Context, cmd Command) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.cmd.Do(ctx, cmd)
}

// Open implements capture.Source.
func (p *Platform) Open(ctx context.Context, prof capture.Profile) (capture.Stream, error) {
	resp, err := p.do(ctx, Command{Cmd: CmdAcquire, Profile: &Profile{
		Width:            prof.Width,
		Height:           prof.Height,
		FrameRate:        prof.FrameRate,
		EchoCancellation: prof.EchoCancellation,
		NoiseSuppression: prof.NoiseSuppression,
		Minimal:          prof.Minimal,
	}})
	if err != nil {
		return nil, err
	}

	s := &stream{p: p, id: resp.ResourceID, subs: make(map[int]func(string))}
	for _, t := range resp.Tracks {
		s.tracks = append(s.tracks, capture.Track{ID: t.ID, Kind: capture.TrackKind(t.Kind), Status: capture.TrackLive})
	}
	p.mu.Lock()
	p.streams[s.id] = s
	p.mu.Unlock()
	return s, nil
}

// Attach implements capture.Surface by opening the daemon's preview window
// on the stream. Preview is cosmetic, so failures are only logged.
func (p *Platform) Attach(streamID string) { p.preview(CmdPreviewShow, streamID) }

// Detach implements capture.Surface.
func (p *Platform) Detach(streamID string) { p.preview(CmdPreviewHide, streamID) }

func (p *Platform) preview(name, streamID string) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	if _, err := p.do(context.Background(), Command{Cmd: name, ResourceID: streamID}); err != nil {
		p.logger.Debugw("preview command failed", "cmd", name, "resourceId", streamID, "error", err)
	}
}

// IsTypeSupported implements recorder.Encoder.
func (p *Platform) IsTypeSupported(mime string) bool {
	return slices.Contains(p.caps.MIMETypes, mime)
}

// Start implements recorder.Encoder.
func (p *Platform) Start(resourceID string, opts recorder.StartOptions, sink recorder.Sink) error {
	resp, err := p.do(context.Background(), Command{
		Cmd:         CmdRecordStart,
		ResourceID:  resourceID,
		MIMEType:    opts.MIMEType,
		TimesliceMs: int(opts.Timeslice.Milliseconds()),
	})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.recID = resp.RecordingID
	p.sink = sink
	p.mu.Unlock()
	return nil
}

func (p *Platform) Pause() error       { return p.recordCmd(CmdRecordPause) }
func (p *Platform) Resume() error      { return p.recordCmd(CmdRecordResume) }
func (p *Platform) RequestData() error { return p.recordCmd(CmdRecordFlush) }

// Stop asks the daemon to stop; the final chunk and record_stopped arrive
// as events.
func (p *Platform) Stop() error { return p.recordCmd(CmdRecordStop) }

func (p *Platform) recordCmd(name string) error {
	p.mu.Lock()
	id := p.recID
	p.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := p.do(context.Background(), Command{Cmd: name, RecordingID: id})
	return err
}

// Check implements transcript.Recognizer.
func (p *Platform) Check() error {
	if p.caps.Recognition != nil && !*p.caps.Recognition {
		return transcript.ErrUnsupported
	}
	if p.caps.SecureContext != nil && !*p.caps.SecureContext {
		return transcript.ErrInsecureContext
	}
	return nil
}

func (p *Platform) listen(locale string, l transcript.Listener) error {
	resp, err := p.do(context.Background(), Command{Cmd: CmdListenStart, Locale: locale})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.listenID = resp.ListenID
	p.listener = l
	p.mu.Unlock()
	return nil
}

func (p *Platform) unlisten() error {
	p.mu.Lock()
	id := p.listenID
	p.listenID = ""
	p.listener = nil
	p.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := p.do(context.Background(), Command{Cmd: CmdListenStop, ListenID: id})
	return err
}

// Recognizer returns the transcript.Recognizer view of p. Encoder and
// Recognizer both need a Start and a Stop, so the recognizer is a
// separate value.
func (p *Platform) Recognizer() transcript.Recognizer { return recognizer{p} }

type recognizer struct{ p *Platform }

func (r recognizer) Check() error                                    { return r.p.Check() }
func (r recognizer) Start(locale string, l transcript.Listener) error { return r.p.listen(locale, l) }
func (r recognizer) Stop() error                                     { return r.p.unlisten() }

func (p *Platform) readLoop() {
	defer close(p.done)
	for {
		ev, err := p.ev.ReadEvent()
		if err != nil {
			p.disconnected(err)
			return
		}
		p.dispatch(ev)
	}
}

func (p *Platform) dispatch(ev Event) {
	switch ev.Event {
	case EvChunk, EvRecordStopped:
		p.mu.Lock()
		sink := p.sink
		match := ev.RecordingID == "" || ev.RecordingID == p.recID
		if ev.Event == EvRecordStopped && match {
			p.recID = ""
			p.sink = nil
		}
		p.mu.Unlock()
		if sink == nil || !match {
			p.logger.Debugw("dropping recorder event", "event", ev.Event, "recordingId", ev.RecordingID)
			return
		}
		if ev.Event == EvChunk {
			sink.OnData(ev.Data)
		} else {
			sink.OnStop()
		}

	case EvTrackEnded:
		p.mu.Lock()
		s := p.streams[ev.ResourceID]
		p.mu.Unlock()
		if s == nil {
			p.logger.Debugw("track ended on unknown resource", "resourceId", ev.ResourceID)
			return
		}
		s.ended(ev.TrackID)

	case EvTranscript, EvRecognitionError, EvListenEnded:
		p.mu.Lock()
		l := p.listener
		match := ev.ListenID == "" || ev.ListenID == p.listenID
		if ev.Event != EvTranscript && match {
			p.listenID = ""
			p.listener = nil
		}
		p.mu.Unlock()
		if l == nil || !match {
			p.logger.Debugw("dropping recognizer event", "event", ev.Event, "listenId", ev.ListenID)
			return
		}
		switch ev.Event {
		case EvTranscript:
			l.OnResult(ev.Final, ev.Partial)
		case EvRecognitionError:
			l.OnError(ev.Code)
		default:
			l.OnEnd()
		}

	default:
		p.logger.Debugw("ignoring daemon event", "event", ev.Event)
	}
}

// disconnected ends everything that depended on the daemon: every live
// track ends, the recording stops and listening is interrupted.
func (p *Platform) disconnected(err error) {
	p.mu.Lock()
	closed := p.closed
	p.readErr = err
	streams := make([]*stream, 0, len(p.streams))
	for _, s := range p.streams {
		streams = append(streams, s)
	}
	p.streams = make(map[string]*stream)
	sink := p.sink
	l := p.listener
	p.sink, p.recID = nil, ""
	p.listener, p.listenID = nil, ""
	p.mu.Unlock()

	if closed {
		return
	}
	p.logger.Errorw("capture daemon connection lost", "error", err)
	for _, s := range streams {
		for _, t := range s.Tracks() {
			s.ended(t.ID)
		}
	}
	if sink != nil {
		sink.OnStop()
	}
	if l != nil {
		l.OnError("interrupted")
	}
}

func (p *Platform) forget(id string) {
	p.mu.Lock()
	delete(p.streams, id)
	p.mu.Unlock()
}

// stream is one acquired resource on the daemon.
type stream struct {
	p  *Platform
	id string

	mu      sync.Mutex
	tracks  []capture.Track
	subs    map[int]func(string)
	nextSub int
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []capture.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tracks)
}

func (s *stream) StopTrack(trackID string) error {
	s.mu.Lock()
	live := false
	remaining := 0
	for i := range s.tracks {
		if s.tracks[i].ID == trackID && s.tracks[i].Status == capture.TrackLive {
			s.tracks[i].Status = capture.TrackEnded
			live = true
		}
		if s.tracks[i].Status == capture.TrackLive {
			remaining++
		}
	}
	s.mu.Unlock()

	if remaining == 0 {
		s.p.forget(s.id)
	}
	if !live {
		return nil
	}
	_, err := s.p.do(context.Background(), Command{Cmd: CmdRelease, ResourceID: s.id, TrackID: trackID})
	return err
}

func (s *stream) OnTrackEnded(fn func(trackID string)) func() {
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

func (s *stream) ended(trackID string) {
	s.mu.Lock()
	found := false
	for i := range s.tracks {
		if s.tracks[i].ID == trackID && s.tracks[i].Status == capture.TrackLive {
			s.tracks[i].Status = capture.TrackEnded
			found = true
		}
	}
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if !found {
		return
	}
	for _, fn := range fns {
		fn(trackID)
	}
}
