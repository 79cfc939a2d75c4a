// Package daemon provides the client and protocol types for talking to the
// rehearse capture daemon over a Unix socket using NDJSON.
package daemon

// Commands understood by the capture daemon.
const (
	CmdCapabilities = "capabilities"
	CmdAcquire      = "acquire"
	CmdRelease      = "release"
	CmdRecordStart  = "record_start"
	CmdRecordPause  = "record_pause"
	CmdRecordResume = "record_resume"
	CmdRecordFlush  = "record_flush"
	CmdRecordStop   = "record_stop"
	CmdListenStart  = "listen_start"
	CmdListenStop   = "listen_stop"
	CmdSubscribe    = "subscribe"
	CmdPreviewShow  = "preview_show"
	CmdPreviewHide  = "preview_hide"
)

// Events streamed to subscribed clients.
const (
	EvChunk            = "chunk"
	EvRecordStopped    = "record_stopped"
	EvTrackEnded       = "track_ended"
	EvTranscript       = "transcript"
	EvRecognitionError = "recognition_error"
	EvListenEnded      = "listen_ended"
)

// Error codes carried by failed responses.
const (
	CodePermissionDenied        = "permission_denied"
	CodeDeviceUnavailable       = "device_unavailable"
	CodeConstraintUnsatisfiable = "constraint_unsatisfiable"
	CodeUnsupportedFormat       = "unsupported_format"
	CodeRecognitionUnsupported  = "recognition_unsupported"
	CodeInsecureContext         = "insecure_context"
)

// Command is sent from a client to the daemon.
type Command struct {
	ID          uint64   `json:"id,omitempty"`
	Cmd         string   `json:"cmd"`
	ResourceID  string   `json:"resourceId,omitempty"`
	TrackID     string   `json:"trackId,omitempty"`
	RecordingID string   `json:"recordingId,omitempty"`
	ListenID    string   `json:"listenId,omitempty"`
	Profile     *Profile `json:"profile,omitempty"`
	MIMEType    string   `json:"mimeType,omitempty"`
	TimesliceMs int      `json:"timesliceMs,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	Events      []string `json:"events,omitempty"`
}

// Profile is the capture quality requested by acquire.
type Profile struct {
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	FrameRate        int  `json:"frameRate"`
	EchoCancellation bool `json:"echoCancellation,omitempty"`
	NoiseSuppression bool `json:"noiseSuppression,omitempty"`
	Minimal          bool `json:"minimal,omitempty"`
}

// Track describes one track of an acquired resource.
type Track struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	ID            uint64   `json:"id,omitempty"`
	OK            bool     `json:"ok"`
	Error         string   `json:"error,omitempty"`
	Code          string   `json:"code,omitempty"`
	ResourceID    string   `json:"resourceId,omitempty"`
	Tracks        []Track  `json:"tracks,omitempty"`
	RecordingID   string   `json:"recordingId,omitempty"`
	ListenID      string   `json:"listenId,omitempty"`
	Devices       []string `json:"devices,omitempty"`
	MIMETypes     []string `json:"mimeTypes,omitempty"`
	Recognition   *bool    `json:"recognition,omitempty"`
	SecureContext *bool    `json:"secureContext,omitempty"`
	Version       string   `json:"version,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event       string `json:"event"`
	ResourceID  string `json:"resourceId,omitempty"`
	TrackID     string `json:"trackId,omitempty"`
	RecordingID string `json:"recordingId,omitempty"`
	ListenID    string `json:"listenId,omitempty"`
	// Data is base64 in the JSON encoding.
	Data    []byte `json:"data,omitempty"`
	Final   string `json:"final,omitempty"`
	Partial string `json:"partial,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building responses.
func BoolPtr(b bool) *bool { return &b }
