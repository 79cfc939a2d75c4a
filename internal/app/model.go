package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/rehearse/internal/cleanup"
	"github.com/jwulff/rehearse/internal/db"
	"github.com/jwulff/rehearse/internal/export"
	"github.com/jwulff/rehearse/internal/interview"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	actionTimeout = 15 * time.Second
	noticeTimeout = 5 * time.Second
	answerHeight  = 4
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusAnswer PanelFocus = iota
	FocusTimeline
)

type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmCameraOff
	confirmReset
	confirmQuit
	confirmStart
)

// Daemon reports when the capture daemon connection ends. *daemon.Platform
// satisfies it.
type Daemon interface {
	Done() <-chan struct{}
	Err() error
}

// Deps are the collaborators of the TUI.
type Deps struct {
	Controller *interview.Controller
	// Store records exports. Nil disables history.
	Store         *db.Store
	ExportDir     string
	ReleaseOnBlur bool
	// Daemon is optional.
	Daemon Daemon
	Logger logging.Logger
	Now    func() time.Time
}

// Model is the root bubbletea model for the rehearse TUI.
type Model struct {
	ctrl          *interview.Controller
	store         *db.Store
	exportDir     string
	releaseOnBlur bool
	daemon        Daemon
	logger        logging.Logger
	now           func() time.Time

	// Controller state, refreshed on every event
	snap interview.Snapshot

	answer textarea.Model

	// UI state
	focus          PanelFocus
	width          int
	height         int
	timelineScroll int
	timelineLive   bool
	confirm        confirmKind
	busy           string
	hint           string

	// Export
	exportedID     string
	exportedFiles  []string
	exportWarnings []string

	daemonLost bool
	quitting   bool
}

// New creates a Model over d.Controller.
func New(d Deps) Model {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	ta := textarea.New()
	ta.Placeholder = "Type your answer, or speak and press ctrl+u to use the transcript"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(answerHeight)
	ta.Focus()

	return Model{
		ctrl:          d.Controller,
		store:         d.Store,
		exportDir:     d.ExportDir,
		releaseOnBlur: d.ReleaseOnBlur,
		daemon:        d.Daemon,
		logger:        d.Logger,
		now:           d.Now,
		snap:          d.Controller.Snapshot(),
		answer:        ta,
		focus:         FocusAnswer,
		timelineLive:  true,
	}
}

// Init reads controller events and turns the camera on.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		readEventCmd(m.ctrl),
		actionCmd("prepare", m.ctrl.Prepare),
		watchDaemonCmd(m.daemon),
		tickCmd(),
		textarea.Blink,
	)
}

// readEventCmd reads the next event from the controller.
func readEventCmd(ctrl *interview.Controller) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ctrl.Events()
		if !ok {
			return ControllerClosedMsg{}
		}
		return ControllerEventMsg{Event: ev}
	}
}

// actionCmd runs a blocking controller call off the update loop.
func actionCmd(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return ActionDoneMsg{Action: name, Err: fn(ctx)}
	}
}

// syncCmd wraps a controller call that takes no context.
func syncCmd(name string, fn func() error) tea.Cmd {
	return actionCmd(name, func(context.Context) error { return fn() })
}

func submitCmd(ctrl *interview.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		sub, err := ctrl.SubmitAnswer(ctx, text)
		return SubmittedMsg{Submission: sub, Err: err}
	}
}

// teardownCmd runs a supervisor trigger and reports step failures.
func teardownCmd(name string, fn func() cleanup.Report) tea.Cmd {
	return func() tea.Msg {
		r := fn()
		var errs []error
		for _, f := range r.Failures {
			errs = append(errs, fmt.Errorf("%s: %w", f.Step, f.Err))
		}
		return ActionDoneMsg{Action: name, Err: errors.Join(errs...)}
	}
}

// exportCmd ends an active session, writes its artifacts and records them
// in the history store.
func exportCmd(ctrl *interview.Controller, store *db.Store, dir string, finish bool, now func() time.Time) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if finish {
			if err := ctrl.Finish(ctx); err != nil {
				return ExportedMsg{Err: err}
			}
		}
		sess, ok := ctrl.Session()
		if !ok {
			return ExportedMsg{Err: interview.ErrNoSession}
		}
		arts, err := export.Build(sess, ctrl.Chunks(), ctrl.Format(), now())
		if err != nil {
			return ExportedMsg{Err: err}
		}
		files, err := export.WriteFiles(ctx, dir, arts)
		if err != nil {
			return ExportedMsg{Err: err}
		}

		msg := ExportedMsg{Files: files, Warnings: arts.Warnings}
		if store != nil {
			doc, err := export.Parse(arts.JSON.Data)
			if err == nil {
				err = store.RecordExport(ctx, doc, files, now())
			}
			msg.HistoryErr = err
		}
		return msg
	}
}

func watchDaemonCmd(d Daemon) tea.Cmd {
	if d == nil {
		return nil
	}
	return func() tea.Msg {
		<-d.Done()
		return DaemonLostMsg{Err: d.Err()}
	}
}

func clearNoticeCmd(at time.Time) tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{At: at}
	})
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.answer.SetWidth(max(20, m.width-2))
		return m, nil

	case tea.BlurMsg:
		if !m.releaseOnBlur || m.quitting {
			return m, nil
		}
		m.logger.Infow("terminal lost focus, releasing capture")
		return m, teardownCmd("hidden", m.ctrl.Hidden)

	case tea.FocusMsg:
		if m.releaseOnBlur && !m.snap.CameraLive && m.snap.State == interview.StateNotStarted {
			return m, actionCmd("prepare", m.ctrl.Prepare)
		}
		return m, nil

	case ControllerEventMsg:
		m.refresh()
		cmds := []tea.Cmd{readEventCmd(m.ctrl)}
		if n := msg.Event.Notice; n != nil && n.Severity == interview.SeverityInfo {
			cmds = append(cmds, clearNoticeCmd(n.At))
		}
		return m, tea.Batch(cmds...)

	case ControllerClosedMsg:
		return m, nil

	case ActionDoneMsg:
		m.busy = ""
		m.refresh()
		if msg.Err != nil {
			m.logger.Debugw("action failed", "action", msg.Action, "error", msg.Err)
			if hint := unannounced(msg.Err); hint != "" {
				m.hint = hint
			}
		}
		return m, nil

	case SubmittedMsg:
		m.busy = ""
		m.refresh()
		if msg.Err == nil {
			m.answer.Reset()
			m.hint = ""
		}
		return m, nil

	case ExportedMsg:
		m.busy = ""
		m.refresh()
		if msg.Err != nil {
			m.logger.Errorw("export failed", "error", msg.Err)
			m.hint = "Export failed: " + msg.Err.Error()
			return m, nil
		}
		if m.snap.Session != nil {
			m.exportedID = m.snap.Session.ID
		}
		m.exportedFiles = msg.Files
		m.exportWarnings = msg.Warnings
		m.hint = "Exported to " + strings.Join(msg.Files, ", ")
		if msg.HistoryErr != nil {
			m.logger.Warnw("history record failed", "error", msg.HistoryErr)
		}
		m.logger.Infow("session exported", "files", msg.Files, "warnings", msg.Warnings)
		return m, nil

	case DaemonLostMsg:
		m.daemonLost = true
		m.refresh()
		return m, nil

	case ClearNoticeMsg:
		if n := m.snap.Notice; n != nil && n.At.Equal(msg.At) {
			m.ctrl.DismissNotice()
			m.refresh()
		}
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	if m.focus == FocusAnswer {
		var cmd tea.Cmd
		m.answer, cmd = m.answer.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	if m.timelineLive {
		m.scrollToBottom()
	}
}

// unannounced returns a message for errors the controller does not post
// a notice for.
func unannounced(err error) string {
	switch {
	case errors.Is(err, interview.ErrNoSession):
		return "There is no session yet."
	case errors.Is(err, interview.ErrDestroyed):
		return "Shutting down."
	}
	return ""
}

func (m Model) exported() bool {
	return m.snap.Session != nil && m.snap.Session.ID == m.exportedID
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirm != confirmNone {
		return m.handleConfirm(key)
	}

	switch key {
	case KeyCtrlC:
		return m.quit(false)

	case KeyTab:
		m.setFocus(1 - m.focus)
		return m, nil

	case KeyEsc:
		m.setFocus(FocusTimeline)
		return m, nil

	case KeySubmit:
		return m.submit()

	case KeyEmergency:
		m.busy = "Shutting down capture..."
		return m, teardownCmd("emergency", m.ctrl.Emergency)

	case KeyTranscript:
		return m, syncCmd("transcript", m.ctrl.ToggleTranscript)

	case KeyUseTranscript:
		if text := m.transcriptText(); text != "" {
			m.answer.SetValue(strings.TrimSpace(m.answer.Value() + " " + text))
		}
		return m, nil

	case KeyClearAnswer:
		m.answer.Reset()
		return m, nil
	}

	if m.focus == FocusAnswer {
		var cmd tea.Cmd
		m.answer, cmd = m.answer.Update(msg)
		return m, cmd
	}

	switch key {
	case KeyQuit:
		return m.quit(false)

	case KeyStart:
		if m.snap.State == interview.StateCompleted {
			m.hint = "Press r to start over."
			return m, nil
		}
		if m.snap.State != interview.StateActive && m.snap.Session != nil && !m.exported() {
			m.confirm = confirmStart
			return m, nil
		}
		return m.start()

	case KeyPause:
		if m.snap.Paused {
			return m, syncCmd("resume", m.ctrl.Resume)
		}
		return m, syncCmd("pause", m.ctrl.Pause)

	case KeyCamera:
		if m.snap.State == interview.StateActive && m.snap.CameraLive {
			m.confirm = confirmCameraOff
			return m, nil
		}
		return m, actionCmd("camera", func(ctx context.Context) error {
			return m.ctrl.ToggleCamera(ctx, false)
		})

	case KeyFinish:
		m.busy = "Ending session..."
		return m, actionCmd("finish", m.ctrl.Finish)

	case KeyExport:
		if m.snap.Session == nil {
			m.hint = "There is no session to export."
			return m, nil
		}
		m.busy = "Exporting..."
		return m, exportCmd(m.ctrl, m.store, m.exportDir, m.snap.State == interview.StateActive, m.now)

	case KeyClearTranscript:
		m.ctrl.ClearTranscript()
		return m, nil

	case KeyReset:
		if m.snap.Session != nil && !m.exported() {
			m.confirm = confirmReset
			return m, nil
		}
		cmd := m.reset()
		return m, cmd

	case KeyUp, KeyK:
		m.timelineLive = false
		if m.timelineScroll > 0 {
			m.timelineScroll--
		}
		return m, nil

	case KeyDown, KeyJ:
		maxScroll := m.maxTimelineScroll()
		m.timelineScroll++
		if m.timelineScroll >= maxScroll {
			m.timelineScroll = maxScroll
			m.timelineLive = true
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleConfirm(key string) (tea.Model, tea.Cmd) {
	kind := m.confirm
	m.confirm = confirmNone
	if key != KeyYes {
		return m, nil
	}

	switch kind {
	case confirmCameraOff:
		return m, actionCmd("camera", func(ctx context.Context) error {
			return m.ctrl.ToggleCamera(ctx, true)
		})
	case confirmReset:
		cmd := m.reset()
		return m, cmd
	case confirmQuit:
		return m.quit(true)
	case confirmStart:
		return m.start()
	}
	return m, nil
}

// start begins a new session. The controller discards any earlier
// recording, so callers confirm first when it was never exported.
func (m Model) start() (tea.Model, tea.Cmd) {
	m.busy = "Starting..."
	m.setFocus(FocusAnswer)
	return m, actionCmd("start", m.ctrl.Start)
}

func (m *Model) reset() tea.Cmd {
	m.answer.Reset()
	m.exportedID = ""
	m.exportedFiles = nil
	m.exportWarnings = nil
	m.hint = ""
	return tea.Sequence(
		syncCmd("reset", m.ctrl.Reset),
		actionCmd("prepare", m.ctrl.Prepare),
	)
}

// quit asks for confirmation when answers would be lost, then tears
// everything down before exiting.
func (m Model) quit(confirmed bool) (tea.Model, tea.Cmd) {
	if !confirmed && m.snap.Session != nil && len(m.snap.Session.Answers) > 0 && !m.exported() {
		m.confirm = confirmQuit
		return m, nil
	}
	m.quitting = true
	ctrl := m.ctrl
	return m, tea.Sequence(func() tea.Msg {
		ctrl.Close()
		return nil
	}, tea.Quit)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.answer.Value()
	if strings.TrimSpace(text) == "" {
		text = m.transcriptText()
	}
	m.busy = "Saving answer..."
	return m, submitCmd(m.ctrl, text)
}

func (m Model) transcriptText() string {
	return strings.TrimSpace(strings.TrimSpace(m.snap.Committed) + " " + strings.TrimSpace(m.snap.Pending))
}

func (m *Model) setFocus(f PanelFocus) {
	m.focus = f
	if f == FocusAnswer {
		m.answer.Focus()
	} else {
		m.answer.Blur()
	}
}

func (m *Model) scrollToBottom() {
	m.timelineScroll = m.maxTimelineScroll()
}

func (m Model) maxTimelineScroll() int {
	total := len(m.timelineLines(m.timelinePanelWidth()))
	visible := m.mainVisibleLines() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) mainVisibleLines() int {
	if m.height == 0 {
		return 12
	}
	// Reserve: header(1) + status(1) + dividers(3) + answer + notice(1) + footer(1)
	reserved := 7 + answerHeight
	return max(5, m.height-reserved)
}

func (m Model) timelinePanelWidth() int {
	if m.width == 0 {
		return 50
	}
	return max(30, m.width*55/100)
}

func (m Model) questionPanelWidth() int {
	if m.width == 0 {
		return 40
	}
	return max(20, m.width-m.timelinePanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	divider := ui.DividerStyle.Render(strings.Repeat("─", m.width))
	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		divider,
		m.renderMainContent(),
		divider,
		m.answer.View(),
		divider,
	}
	if bar := m.renderNoticeBar(); bar != "" {
		sections = append(sections, bar)
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("REHEARSE")

	var progress string
	switch {
	case m.snap.State == interview.StateCompleted:
		progress = ui.DimStyle.Render(" · complete")
	case m.snap.Session != nil && m.snap.State == interview.StateActive:
		progress = ui.DimStyle.Render(fmt.Sprintf(" · question %d of %d", m.snap.QuestionIndex+1, m.snap.TotalQuestions))
	default:
		progress = ui.DimStyle.Render(fmt.Sprintf(" · %d questions", m.snap.TotalQuestions))
	}

	var busy string
	if m.busy != "" {
		busy = "  " + ui.SpinnerStyle.Render(m.busy)
	}
	return title + progress + busy
}

func (m Model) renderStatusBar() string {
	var parts []string

	if m.snap.CameraLive {
		parts = append(parts, ui.CameraOnStyle.Render("● CAM"))
	} else {
		parts = append(parts, ui.IdleDotStyle.Render("○ CAM"))
	}

	switch {
	case m.snap.Recording && m.snap.Paused:
		parts = append(parts, ui.PausedStyle.Render("❚❚ PAUSED ")+ui.TimestampStyle.Render(formatElapsed(m.snap.Elapsed)))
	case m.snap.Recording:
		parts = append(parts, ui.RecordingDotStyle.Render("● REC ")+ui.TimestampStyle.Render(formatElapsed(m.snap.Elapsed)))
	default:
		parts = append(parts, ui.IdleDotStyle.Render("○ IDLE"))
	}

	if m.snap.Listening {
		parts = append(parts, ui.LiveBadgeStyle.Render("● MIC"))
	} else {
		parts = append(parts, ui.IdleDotStyle.Render("○ MIC"))
	}

	if m.snap.Chunks > 0 {
		parts = append(parts, ui.StatusStyle.Render(fmt.Sprintf("%d chunks · %s", m.snap.Chunks, formatBytes(m.snap.Bytes))))
	}
	if m.snap.State == interview.StateActive && !m.snap.VideoAvailable {
		parts = append(parts, ui.WarnStyle.Render("transcript only"))
	}

	return strings.Join(parts, "  ")
}

func (m Model) renderMainContent() string {
	timelineW := m.timelinePanelWidth()
	questionW := m.questionPanelWidth()
	contentH := m.mainVisibleLines()

	left := strings.Split(m.renderTimelinePanel(timelineW, contentH), "\n")
	right := strings.Split(m.renderQuestionPanel(questionW, contentH), "\n")
	divider := ui.DividerStyle.Render(" │ ")

	var rows []string
	for i := 0; i < contentH; i++ {
		l := strings.Repeat(" ", timelineW)
		if i < len(left) {
			l = padRight(left[i], timelineW)
		}
		r := ""
		if i < len(right) {
			r = right[i]
		}
		rows = append(rows, l+divider+r)
	}
	return strings.Join(rows, "\n")
}

// timelineLines renders every timeline entry, wrapped to width.
func (m Model) timelineLines(width int) []string {
	if m.snap.Session == nil {
		return nil
	}
	const prefixWidth = 12 // "[00:00] Q1  "
	textWidth := max(10, width-prefixWidth)
	indent := strings.Repeat(" ", prefixWidth)

	var lines []string
	for _, e := range m.snap.Session.Timeline {
		ts := ui.TimestampStyle.Render(formatElapsed(time.Duration(e.OffsetMs) * time.Millisecond))
		label := fmt.Sprintf("%-3s", fmt.Sprintf("A%d", e.QuestionIndex+1))
		style := ui.AnswerStyle
		if e.Kind == interview.EntryQuestion {
			label = fmt.Sprintf("%-3s", fmt.Sprintf("Q%d", e.QuestionIndex+1))
			style = ui.QuestionStyle
		}
		wrapped := wrapText(e.Content, textWidth)
		lines = append(lines, ts+" "+ui.SourceLabelStyle.Render(label)+" "+style.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			lines = append(lines, indent+style.Render(wl))
		}
	}
	return lines
}

func (m Model) renderTimelinePanel(width, height int) string {
	badge := ui.LiveBadgeStyle.Render(" LIVE")
	if !m.timelineLive {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}
	title := ui.PanelTitleStyle
	if m.focus == FocusTimeline {
		title = ui.PanelTitleActiveStyle
	}
	lines := []string{title.Render("TIMELINE") + badge}

	body := m.timelineLines(width)
	contentHeight := height - 1
	switch {
	case m.daemonLost:
		lines = append(lines, "", ui.ErrorTextStyle.Render("Capture daemon disconnected."),
			ui.DimStyle.Render("Export what you have, then restart rehearse."))
	case len(body) == 0 && m.snap.CameraLive:
		lines = append(lines, "", ui.DimStyle.Render("Camera ready. Press s to start the interview."))
	case len(body) == 0:
		lines = append(lines, "", ui.DimStyle.Render("Press c to turn the camera on."))
	default:
		start := m.timelineScroll
		if m.timelineLive && len(body) > contentHeight {
			start = len(body) - contentHeight
		}
		start = max(0, min(start, len(body)))
		end := min(len(body), start+contentHeight)
		lines = append(lines, body[start:end]...)
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderQuestionPanel(width, height int) string {
	lines := []string{ui.PanelTitleStyle.Render("QUESTION")}
	switch {
	case m.snap.State == interview.StateCompleted:
		lines = append(lines, ui.DimStyle.Render("All questions answered."))
	case m.snap.CurrentQuestion != "":
		for _, wl := range wrapText(m.snap.CurrentQuestion, width) {
			lines = append(lines, ui.QuestionStyle.Render(wl))
		}
	default:
		lines = append(lines, ui.DimStyle.Render("Not started."))
	}

	lines = append(lines, "", ui.PanelTitleStyle.Render("TRANSCRIPT"))
	if m.snap.Committed == "" && m.snap.Pending == "" {
		if m.snap.Listening {
			lines = append(lines, ui.DimStyle.Render("Listening..."))
		} else {
			lines = append(lines, ui.DimStyle.Render("ctrl+t to capture speech"))
		}
	} else {
		if m.snap.Committed != "" {
			lines = append(lines, wrapText(m.snap.Committed, width)...)
		}
		if m.snap.Pending != "" {
			for _, wl := range wrapText(m.snap.Pending+"▌", width) {
				lines = append(lines, ui.PartialTextStyle.Render(wl))
			}
		}
	}

	// Keep the newest transcript text visible.
	if len(lines) > height {
		lines = append(lines[:3], lines[len(lines)-(height-3):]...)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNoticeBar() string {
	switch m.confirm {
	case confirmCameraOff:
		return ui.ConfirmStyle.Render("Turn the camera off? The recording stops and is kept for export. [y/N]")
	case confirmReset:
		return ui.ConfirmStyle.Render("Discard this session without exporting? [y/N]")
	case confirmQuit:
		return ui.ConfirmStyle.Render("Quit without exporting your answers? [y/N]")
	case confirmStart:
		return ui.ConfirmStyle.Render("Start over? The unexported session and its recording are discarded. [y/N]")
	}

	if n := m.snap.Notice; n != nil {
		switch n.Severity {
		case interview.SeverityError:
			return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(n.Message)
		case interview.SeverityWarn:
			return ui.WarnStyle.Render(n.Message)
		default:
			return ui.InfoStyle.Render(n.Message)
		}
	}
	if len(m.exportWarnings) > 0 && m.exported() {
		return ui.WarnStyle.Render("Exported with warnings: " + strings.Join(m.exportWarnings, "; "))
	}
	if m.hint != "" {
		return ui.DimStyle.Render(m.hint)
	}
	return ""
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	if m.focus == FocusAnswer {
		parts = append(parts,
			key("ctrl+s", "Submit"),
			key("ctrl+u", "Use transcript"),
			key("ctrl+l", "Clear"),
			key("ctrl+t", "Mic"),
			key("esc", "Controls"),
		)
	} else {
		switch m.snap.State {
		case interview.StateActive:
			pause := "Pause"
			if m.snap.Paused {
				pause = "Resume"
			}
			parts = append(parts, key("p", pause), key("f", "End"))
		case interview.StateCameraReady:
			parts = append(parts, key("s", "Start"))
		}
		parts = append(parts,
			key("c", "Camera"),
			key("e", "Export"),
			key("x", "Clear transcript"),
			key("r", "Reset"),
			key("tab", "Answer"),
			key("↑↓", "Scroll"),
			key("q", "Quit"),
		)
	}
	parts = append(parts, key("ctrl+x", "Emergency stop"))

	return strings.Join(parts, "  ")
}

// Helpers

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("[%02d:%02d]", int(d.Minutes()), int(d.Seconds())%60)
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
