package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/cleanup"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/recorder"
	"github.com/jwulff/rehearse/internal/transcript"
)

var (
	ErrCameraNotReady       = errors.New("camera is not ready")
	ErrAlreadyActive        = errors.New("interview already in progress")
	ErrNotActive            = errors.New("no active interview")
	ErrEmptyAnswer          = errors.New("answer is empty")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrNoSession            = errors.New("no session")
	ErrDestroyed            = errors.New("controller is closed")
)

// State is the session controller state.
type State string

const (
	StateNotStarted  State = "notStarted"
	StateCameraReady State = "cameraReady"
	StateActive      State = "active"
	StateCompleted   State = "completed"
)

// Platform is the set of hardware-facing collaborators.
type Platform struct {
	Source     capture.Source
	Encoder    recorder.Encoder
	Recognizer transcript.Recognizer
	// Surface receives attach/detach calls for the live preview. Optional.
	Surface capture.Surface
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Questions      []string
	Profile        *capture.Profile
	VerifyRelease  bool
	ProbeTimeout   time.Duration
	Timeslice      time.Duration
	StopTimeout    time.Duration
	CleanupTimeout time.Duration // per teardown step
	Locale         string
	AutoTranscript bool
	EventBuffer    int
	Logger         logging.Logger
	Clock          func() time.Time
}

// Controller is the interview state machine. All methods are safe for
// concurrent use.
type Controller struct {
	logger    logging.Logger
	clock     func() time.Time
	questions []string
	autoTx    bool
	probeWait time.Duration

	device *capture.Handle
	rec    *recorder.Recorder
	tx     *transcript.Engine
	sup    *cleanup.Supervisor

	emitMu       sync.Mutex
	events       chan Event
	eventsClosed bool

	mu        sync.Mutex
	state     State
	sess      *Session
	index     int
	gen       uint64 // bumped whenever the session is replaced or discarded
	recording bool
	paused    bool
	listening bool
	videoOK   bool
	notice    *Notice
	closed    bool
}

// New wires a Controller over p.
func New(p Platform, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = capture.DefaultProbeTimeout
	}

	c := &Controller{
		logger:    opts.Logger,
		clock:     opts.Clock,
		questions: Questions(opts.Questions),
		autoTx:    opts.AutoTranscript,
		probeWait: opts.ProbeTimeout,
		events:    make(chan Event, opts.EventBuffer),
		state:     StateNotStarted,
	}

	hopts := []capture.Option{capture.WithLogger(opts.Logger)}
	if opts.Profile != nil {
		hopts = append(hopts, capture.WithProfile(*opts.Profile))
	}
	if p.Surface != nil {
		hopts = append(hopts, capture.WithSurface(p.Surface))
	}
	if opts.VerifyRelease {
		hopts = append(hopts, capture.WithReleaseVerification(opts.ProbeTimeout))
	}
	c.device = capture.NewHandle(p.Source, hopts...)

	c.rec = recorder.New(p.Encoder,
		recorder.WithLogger(opts.Logger),
		recorder.WithTimeslice(opts.Timeslice),
		recorder.WithStopTimeout(opts.StopTimeout),
		recorder.WithClock(opts.Clock),
		recorder.WithEventHandler(c.onRecorderEvent),
	)

	topts := []transcript.Option{
		transcript.WithLogger(opts.Logger),
		transcript.WithEventHandler(c.onTranscriptEvent),
	}
	if opts.Locale != "" {
		topts = append(topts, transcript.WithLocale(opts.Locale))
	}
	c.tx = transcript.New(p.Recognizer, topts...)

	c.sup = cleanup.New(opts.Logger,
		cleanup.Step{Name: "recorder", Run: c.rec.ForceStop, Timeout: opts.CleanupTimeout},
		cleanup.Step{Name: "device", Run: c.releaseDevice, Timeout: opts.CleanupTimeout},
		cleanup.Step{Name: "transcript", Run: c.tx.ForceStop, Timeout: opts.CleanupTimeout},
		cleanup.Step{Name: "flags", Run: c.resetFlags, Timeout: opts.CleanupTimeout},
	)
	return c
}

// Events returns the event stream. It is closed by Close.
func (c *Controller) Events() <-chan Event { return c.events }

// Questions returns the configured question list.
func (c *Controller) Questions() []string { return append([]string(nil), c.questions...) }

// Prepare acquires the camera without starting a session. Failures become
// notices and leave the state unchanged.
func (c *Controller) Prepare(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != StateNotStarted && st != StateCompleted {
		return nil
	}
	if c.device.Held() {
		c.transition(StateNotStarted, StateCameraReady)
		return nil
	}
	return c.acquire(ctx)
}

func (c *Controller) acquire(ctx context.Context) error {
	b, err := c.device.Acquire(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrAcquireCancelled) || errors.Is(err, context.Canceled) {
			c.logger.Infow("camera acquisition cancelled")
			return err
		}
		c.logger.Warnw("camera acquisition failed", "error", err)
		c.warn(deviceMessage(err))
		return err
	}
	c.transition(StateNotStarted, StateCameraReady)

	c.mu.Lock()
	resume := c.state == StateActive && c.sess != nil && !c.sess.Completed
	c.mu.Unlock()
	if resume && c.rec.State() == recorder.StateInactive {
		c.startRecorder(b)
	}
	c.info("Camera on.")
	return nil
}

// Start begins a new session. The camera must be ready.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		c.warn("An interview is already in progress.")
		return ErrAlreadyActive
	}
	b := c.device.Current()
	if c.state != StateCameraReady || b == nil || !b.Live() {
		c.mu.Unlock()
		c.warn("Turn on the camera before starting the interview.")
		return ErrCameraNotReady
	}
	if err := c.rec.Reset(); err != nil {
		c.mu.Unlock()
		c.logger.Errorw("recorder not inactive at session start", "error", err)
		c.warn("The previous recording is still finishing. Try again in a moment.")
		return err
	}
	now := c.clock()
	c.sess = &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		Questions: append([]string(nil), c.questions...),
		Timeline: []TimelineEntry{{
			Kind:          EntryQuestion,
			Content:       c.questions[0],
			QuestionIndex: 0,
		}},
	}
	c.index = 0
	c.gen++
	c.state = StateActive
	id := c.sess.ID
	c.mu.Unlock()

	c.logger.Infow("interview started", "sessionId", id, "questions", len(c.questions))
	c.emit(Event{Kind: EventState})
	c.tx.Clear()
	c.startRecorder(b)
	if c.autoTx {
		c.startTranscript()
	}
	return nil
}

func (c *Controller) startRecorder(b capture.Binding) {
	err := c.rec.Start(b)
	c.mu.Lock()
	c.videoOK = err == nil
	c.mu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, recorder.ErrUnsupportedFormat):
		c.logger.Warnw("no supported recording format, continuing transcript only")
		c.warn("Video recording is not supported here. Continuing with transcript only.")
	default:
		c.logger.Errorw("recorder start failed", "error", err)
		c.post(SeverityError, fmt.Sprintf("Recording could not start (%v). Continuing with transcript only.", err))
	}
	c.emit(Event{Kind: EventRecording})
}

// Pause pauses the recording.
func (c *Controller) Pause() error {
	return c.recorderStep("pause", c.rec.Pause)
}

// Resume resumes a paused recording.
func (c *Controller) Resume() error {
	return c.recorderStep("resume", c.rec.Resume)
}

func (c *Controller) recorderStep(name string, fn func() error) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		c.warn("There is no interview in progress.")
		return ErrNotActive
	}
	if err := fn(); err != nil {
		c.logger.Warnw("recorder "+name+" rejected", "error", err)
		c.warn(fmt.Sprintf("Cannot %s the recording right now.", name))
		return err
	}
	return nil
}

// Submission is the outcome of SubmitAnswer.
type Submission struct {
	Index     int
	Next      string
	Completed bool
}

// SubmitAnswer records text as the answer to the current question and
// advances to the next one. Submitting the last answer completes the
// session, which waits for the recorder's final flush.
func (c *Controller) SubmitAnswer(ctx context.Context, text string) (Submission, error) {
	if err := c.check(); err != nil {
		return Submission{}, err
	}
	answer := strings.TrimSpace(text)

	c.mu.Lock()
	if c.state != StateActive || c.sess == nil || c.sess.Completed {
		c.mu.Unlock()
		c.warn("There is no interview in progress.")
		return Submission{}, ErrNotActive
	}
	if answer == "" {
		c.mu.Unlock()
		c.warn("Write or speak an answer before submitting.")
		return Submission{}, ErrEmptyAnswer
	}

	now := c.clock()
	offset := now.Sub(c.sess.StartedAt).Milliseconds()
	idx := c.index
	c.sess.Answers = append(c.sess.Answers, AnswerRecord{
		QuestionIndex:         idx,
		QuestionText:          c.sess.Questions[idx],
		AnswerText:            answer,
		SubmittedAtOffsetMs:   offset,
		VideoOffsetMsAtSubmit: c.rec.Elapsed().Milliseconds(),
	})
	c.sess.Timeline = append(c.sess.Timeline, TimelineEntry{
		Kind:          EntryAnswer,
		Content:       answer,
		QuestionIndex: idx,
		OffsetMs:      offset,
	})

	if idx+1 < len(c.sess.Questions) {
		c.index = idx + 1
		next := c.sess.Questions[c.index]
		c.sess.Timeline = append(c.sess.Timeline, TimelineEntry{
			Kind:          EntryQuestion,
			Content:       next,
			QuestionIndex: c.index,
			OffsetMs:      offset,
		})
		c.mu.Unlock()

		c.tx.Clear()
		c.emit(Event{Kind: EventState})
		return Submission{Index: idx + 1, Next: next}, nil
	}

	c.sess.Completed = true
	ended := now
	c.sess.EndedAt = &ended
	gen := c.gen
	id := c.sess.ID
	c.mu.Unlock()

	c.tx.Stop()
	c.tx.Clear()
	c.stopRecorder(ctx)

	c.mu.Lock()
	if c.gen == gen {
		c.state = StateCompleted
		c.recording = false
		c.paused = false
	}
	c.mu.Unlock()

	c.logger.Infow("interview completed", "sessionId", id, "chunks", c.rec.ChunkCount())
	c.emit(Event{Kind: EventState})
	c.info("Interview complete. Export the session to keep it.")
	return Submission{Index: idx, Completed: true}, nil
}

func (c *Controller) stopRecorder(ctx context.Context) {
	if c.rec.State() == recorder.StateInactive {
		return
	}
	if err := c.rec.Stop(ctx); err != nil && !errors.Is(err, recorder.ErrInvalidTransition) {
		c.logger.Warnw("recorder stop failed", "error", err)
	}
}

// ToggleCamera turns the camera off when it is held and live, and on
// otherwise. A resource whose tracks have all ended counts as off, so the
// camera can be recovered mid-interview. Turning it off during an interview
// needs confirmed set; the recording is stopped gracefully first and its
// chunks are kept for export.
func (c *Controller) ToggleCamera(ctx context.Context, confirmed bool) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.device.Held() {
		c.mu.Lock()
		if c.state == StateNotStarted {
			c.mu.Unlock()
			return c.Prepare(ctx)
		}
		c.mu.Unlock()
		return c.acquire(ctx)
	}

	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if active && !confirmed {
		c.warn("Turning the camera off ends the interview recording. Confirm to continue.")
		return ErrConfirmationRequired
	}

	c.stopRecorder(ctx)
	c.tx.Stop()
	c.device.Release(ctx)

	c.mu.Lock()
	if c.state == StateActive || c.state == StateCameraReady {
		c.state = StateNotStarted
	}
	c.recording = false
	c.paused = false
	c.mu.Unlock()

	c.logger.Infow("camera turned off", "wasActive", active)
	c.emit(Event{Kind: EventState})
	if active {
		c.info("Camera off. The recording so far is kept for export.")
	} else {
		c.info("Camera off.")
	}
	return nil
}

// ToggleTranscript starts or stops speech capture.
func (c *Controller) ToggleTranscript() error {
	if err := c.check(); err != nil {
		return err
	}
	if c.tx.State() == transcript.StateListening {
		c.tx.Stop()
		return nil
	}
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		c.warn("Start the interview before capturing a transcript.")
		return ErrNotActive
	}
	return c.startTranscript()
}

func (c *Controller) startTranscript() error {
	err := c.tx.Start()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transcript.ErrUnsupported):
		c.warn("Speech recognition is not available. Type your answers instead.")
	case errors.Is(err, transcript.ErrInsecureContext):
		c.warn("Speech recognition needs a secure connection. Type your answers instead.")
	default:
		c.logger.Warnw("transcript start failed", "error", err)
		c.warn("Could not start transcript capture. Type your answers instead.")
	}
	return err
}

// ClearTranscript drops the captured transcript text.
func (c *Controller) ClearTranscript() {
	c.tx.Clear()
	c.emit(Event{Kind: EventTranscript})
}

// Finish ends the session early: the recording is stopped (waiting for its
// final flush) and transcript capture stops. The session stays available
// for export until Reset.
func (c *Controller) Finish(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.sess.EndedAt == nil {
		ended := c.clock()
		c.sess.EndedAt = &ended
	}
	c.mu.Unlock()

	c.tx.Stop()
	c.stopRecorder(ctx)
	c.emit(Event{Kind: EventState})
	return nil
}

// Reset tears everything down and discards the session and its chunks.
func (c *Controller) Reset() error {
	if err := c.check(); err != nil {
		return err
	}
	c.sup.Trigger(cleanup.ReasonReset)
	if err := c.rec.Reset(); err != nil {
		c.logger.Warnw("recorder reset failed", "error", err)
	}
	c.tx.Clear()

	c.mu.Lock()
	c.sess = nil
	c.index = 0
	c.gen++
	c.state = StateNotStarted
	c.videoOK = false
	c.notice = nil
	c.mu.Unlock()

	c.emit(Event{Kind: EventState})
	return nil
}

// Emergency force-releases every capture resource. The session and its
// chunks survive for export.
func (c *Controller) Emergency() cleanup.Report {
	r := c.sup.Emergency()
	c.emit(Event{Kind: EventState})
	c.info("Camera, microphone and recording have been shut down.")
	return r
}

// Hidden is called when the UI loses focus.
func (c *Controller) Hidden() cleanup.Report {
	r := c.sup.Hidden()
	c.emit(Event{Kind: EventState})
	return r
}

// Unloading is called when the process is about to exit.
func (c *Controller) Unloading() cleanup.Report { return c.sup.Unloading() }

// Supervisor exposes the cleanup supervisor, for signal handling.
func (c *Controller) Supervisor() *cleanup.Supervisor { return c.sup }

// Close releases everything and closes the event stream. Every later call
// returns ErrDestroyed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.sup.Unloading()

	c.emitMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.emitMu.Unlock()
}

// Session returns a copy of the current or most recent session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Session{}, false
	}
	return c.sess.Clone(), true
}

// Chunks returns the recorded chunks.
func (c *Controller) Chunks() [][]byte { return c.rec.Chunks() }

// Format returns the negotiated recording format.
func (c *Controller) Format() recorder.Format { return c.rec.Format() }

// Snapshot returns a copy of everything the UI renders.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:          c.state,
		QuestionIndex:  c.index,
		TotalQuestions: len(c.questions),
		Recording:      c.recording,
		Paused:         c.paused,
		Listening:      c.listening,
		VideoAvailable: c.videoOK,
	}
	if c.sess != nil {
		sess := c.sess.Clone()
		s.Session = &sess
		if !sess.Completed {
			s.CurrentQuestion = sess.Questions[c.index]
		}
	}
	if c.notice != nil {
		n := *c.notice
		s.Notice = &n
	}
	c.mu.Unlock()

	s.CameraLive = c.device.Held()
	s.Chunks = c.rec.ChunkCount()
	s.Bytes = c.rec.Bytes()
	s.Elapsed = c.rec.Elapsed()
	s.Format = c.rec.Format()
	s.Committed = c.tx.Committed()
	s.Pending = c.tx.Pending()
	return s
}

// DismissNotice clears the current notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
}

func (c *Controller) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDestroyed
	}
	return nil
}

func (c *Controller) transition(from, to State) {
	c.mu.Lock()
	changed := c.state == from
	if changed {
		c.state = to
	}
	c.mu.Unlock()
	if changed {
		c.emit(Event{Kind: EventState})
	}
}

func (c *Controller) releaseDevice() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.probeWait)
	defer cancel()
	c.device.Release(ctx)
	return nil
}

func (c *Controller) resetFlags() error {
	c.mu.Lock()
	c.recording = false
	c.paused = false
	c.listening = false
	if c.state == StateCameraReady {
		c.state = StateNotStarted
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) onRecorderEvent(ev recorder.Event) {
	switch ev.Kind {
	case recorder.EventStateChanged:
		c.mu.Lock()
		c.recording = ev.State == recorder.StateRecording
		c.paused = ev.State == recorder.StatePaused
		c.mu.Unlock()
		c.emit(Event{Kind: EventRecording})
	case recorder.EventChunk:
		c.emit(Event{Kind: EventRecording})
	case recorder.EventStreamLost:
		c.mu.Lock()
		c.recording = false
		c.paused = false
		c.mu.Unlock()
		c.warn("The camera stream was lost and recording stopped. The recording so far is kept.")
	}
}

func (c *Controller) onTranscriptEvent(ev transcript.Event) {
	switch ev.Kind {
	case transcript.EventStateChanged:
		c.mu.Lock()
		c.listening = ev.State == transcript.StateListening
		c.mu.Unlock()
		c.emit(Event{Kind: EventTranscript})
	case transcript.EventFragment:
		c.emit(Event{Kind: EventTranscript, Final: ev.Final, Pending: ev.Pending})
	case transcript.EventError:
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventTranscript})
		c.warn(ev.Code.Message())
	}
}

func deviceMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Camera or microphone access was denied. Allow access and try again."
	case errors.Is(err, capture.ErrConstraintUnsatisfiable):
		return "The camera cannot provide the requested quality."
	case errors.Is(err, context.DeadlineExceeded):
		return "The camera did not respond in time. Try again."
	default:
		return "No camera or microphone is available."
	}
}
