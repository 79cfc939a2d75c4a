package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwulff/rehearse/internal/logging"
)

// DefaultProbeTimeout bounds the release verification probe.
const DefaultProbeTimeout = 2 * time.Second

// Handle owns the single live capture resource.
type Handle struct {
	source       Source
	logger       logging.Logger
	profile      Profile
	surface      Surface
	verify       bool
	probeTimeout time.Duration

	mu  sync.Mutex
	res *resource
	seq uint64 // bumped by every acquire and release
}

// Option configures a Handle.
type Option func(*Handle)

// WithProfile overrides DefaultProfile.
func WithProfile(p Profile) Option {
	return func(h *Handle) { h.profile = p }
}

// WithSurface attaches every acquired stream to s and detaches it on release.
func WithSurface(s Surface) Option {
	return func(h *Handle) { h.surface = s }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Handle) { h.logger = l }
}

// WithReleaseVerification makes Release re-open a minimal stream and close
// it straight away. Some platforms keep the hardware lock (and the camera
// light) until the next request goes through.
func WithReleaseVerification(timeout time.Duration) Option {
	return func(h *Handle) {
		h.verify = true
		if timeout > 0 {
			h.probeTimeout = timeout
		}
	}
}

// NewHandle returns a Handle that opens streams from source.
func NewHandle(source Source, opts ...Option) *Handle {
	h := &Handle{
		source:       source,
		logger:       logging.NewNop(),
		profile:      DefaultProfile(),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Acquire opens a new capture resource. Any resource already held is
// released first, so at most one is ever live.
func (h *Handle) Acquire(ctx context.Context) (Binding, error) {
	h.mu.Lock()
	prev := h.res
	h.res = nil
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	if prev != nil {
		h.logger.Infow("releasing held capture before re-acquire", "resourceId", prev.ResourceID())
		h.teardown(prev)
	}

	stream, err := h.source.Open(ctx, h.profile)
	if err != nil {
		return nil, fmt.Errorf("acquire capture: %w", classify(err))
	}

	h.mu.Lock()
	if h.seq != seq {
		h.mu.Unlock()
		h.logger.Infow("discarding capture opened after release", "resourceId", stream.ID())
		h.stopStream(stream)
		return nil, ErrAcquireCancelled
	}
	res := newResource(stream)
	h.res = res
	if h.surface != nil {
		h.surface.Attach(stream.ID())
	}
	h.mu.Unlock()

	h.logger.Infow("capture acquired", "resourceId", stream.ID(), "tracks", len(res.Tracks()))
	return res, nil
}

// Release stops every track of the held resource, detaches it from the
// surface and clears the handle. It also cancels an acquisition still in
// flight. Calling it with nothing held is a no-op.
func (h *Handle) Release(ctx context.Context) {
	h.mu.Lock()
	res := h.res
	h.res = nil
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	if res == nil {
		return
	}
	h.teardown(res)
	h.logger.Infow("capture released", "resourceId", res.ResourceID())

	if !h.verify {
		return
	}
	h.mu.Lock()
	superseded := h.seq != seq
	h.mu.Unlock()
	if superseded {
		return
	}
	h.probe(ctx)
}

// Current returns the binding for the held resource, or nil.
func (h *Handle) Current() Binding {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.res == nil {
		return nil
	}
	return h.res
}

// Held reports whether a resource is held and still live.
func (h *Handle) Held() bool {
	b := h.Current()
	return b != nil && b.Live()
}

func (h *Handle) teardown(res *resource) {
	for _, err := range res.stop() {
		h.logger.Warnw("stop track failed", "resourceId", res.ResourceID(), "error", err)
	}
	if h.surface != nil {
		h.surface.Detach(res.ResourceID())
	}
}

// probe opens and immediately closes a minimal stream. A failure here says
// nothing reliable about the device, so it is only logged.
func (h *Handle) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	stream, err := h.source.Open(ctx, MinimalProfile())
	if err != nil {
		h.logger.Warnw("release verification probe failed", "error", err)
		return
	}
	h.stopStream(stream)
	h.logger.Debugw("release verified", "probeId", stream.ID())
}

func (h *Handle) stopStream(s Stream) {
	for _, t := range s.Tracks() {
		if err := s.StopTrack(t.ID); err != nil {
			h.logger.Warnw("stop track failed", "resourceId", s.ID(), "trackId", t.ID, "error", err)
		}
	}
}

// classify maps unknown platform failures onto ErrDeviceUnavailable so that
// callers only branch on the three documented errors or on the context
// ending.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrDeviceUnavailable),
		errors.Is(err, ErrConstraintUnsatisfiable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// resource is the held capture resource. Only Handle creates and stops it.
type resource struct {
	stream Stream

	mu          sync.Mutex
	tracks      []Track
	subs        map[int]func(Track)
	nextSub     int
	released    bool
	cancelEnded func()
}

func newResource(s Stream) *resource {
	r := &resource{stream: s, subs: make(map[int]func(Track))}
	for _, t := range s.Tracks() {
		if t.Status == "" {
			t.Status = TrackLive
		}
		r.tracks = append(r.tracks, t)
	}
	r.cancelEnded = s.OnTrackEnded(r.trackEnded)
	return r
}

func (r *resource) ResourceID() string { return r.stream.ID() }

// Live reports whether the resource is still held and has a live track.
func (r *resource) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	for _, t := range r.tracks {
		if t.Status == TrackLive {
			return true
		}
	}
	return false
}

func (r *resource) Tracks() []Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Track, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *resource) OnTrackEnded(fn func(Track)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *resource) trackEnded(trackID string) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	var ended *Track
	for i := range r.tracks {
		if r.tracks[i].ID == trackID && r.tracks[i].Status == TrackLive {
			r.tracks[i].Status = TrackEnded
			t := r.tracks[i]
			ended = &t
			break
		}
	}
	var fns []func(Track)
	if ended != nil {
		for _, fn := range r.subs {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(*ended)
	}
}

// stop ends every live track and drops all subscriptions. Only the first
// call does anything.
func (r *resource) stop() []error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	r.subs = nil
	cancel := r.cancelEnded
	var live []string
	for i := range r.tracks {
		if r.tracks[i].Status == TrackLive {
			live = append(live, r.tracks[i].ID)
		}
		r.tracks[i].Status = TrackEnded
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, id := range live {
		if err := r.stream.StopTrack(id); err != nil {
			errs = append(errs, fmt.Errorf("stop track %s: %w", id, err))
		}
	}
	return errs
}
