// Package capture owns the live camera + microphone resource.
//
// A Handle holds at most one resource at a time. Other components never see
// the resource itself; they get a read-only Binding for the current
// acquisition, and every subscription made through a Binding is disposed when
// the resource is released.
package capture

import (
	"context"
	"errors"
)

// Acquisition failures. All of them are recoverable: the caller may retry or
// carry on without capture.
var (
	ErrPermissionDenied        = errors.New("camera or microphone permission denied")
	ErrDeviceUnavailable       = errors.New("capture device unavailable")
	ErrConstraintUnsatisfiable = errors.New("capture constraints cannot be satisfied")
	ErrAcquireCancelled        = errors.New("acquisition cancelled by release")
)

// TrackKind is the media type of a track.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// TrackStatus is the lifecycle status of a track.
type TrackStatus string

const (
	TrackLive  TrackStatus = "live"
	TrackEnded TrackStatus = "ended"
)

// Track is one media stream inside a resource.
type Track struct {
	ID     string
	Kind   TrackKind
	Status TrackStatus
}

// Profile is the quality profile requested from the platform.
type Profile struct {
	Width            int  `yaml:"width"`
	Height           int  `yaml:"height"`
	FrameRate        int  `yaml:"frame_rate"`
	EchoCancellation bool `yaml:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression"`
	// Minimal asks for a single throwaway video track and no audio.
	Minimal bool `yaml:"-"`
}

// DefaultProfile is the profile used for interview capture.
func DefaultProfile() Profile {
	return Profile{
		Width:            1280,
		Height:           720,
		FrameRate:        30,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// MinimalProfile is the cheapest request the platform accepts. It is used by
// the release verification probe.
func MinimalProfile() Profile {
	return Profile{Width: 1, Height: 1, FrameRate: 1, Minimal: true}
}

// Stream is a live capture stream opened by a Source.
type Stream interface {
	ID() string
	Tracks() []Track
	// StopTrack stops one track. Stopping an ended track is not an error.
	StopTrack(trackID string) error
	// OnTrackEnded registers fn for tracks that end outside our control
	// (device unplugged, permission revoked). The returned func unregisters.
	OnTrackEnded(fn func(trackID string)) (cancel func())
}

// Source opens capture streams on the platform.
type Source interface {
	Open(ctx context.Context, profile Profile) (Stream, error)
}

// Surface is anything presenting the live stream (a preview window, a status
// line). Detach must tolerate being called for a stream it never attached.
type Surface interface {
	Attach(streamID string)
	Detach(streamID string)
}

// Binding is the read-only view of the held resource given to consumers.
type Binding interface {
	ResourceID() string
	Live() bool
	Tracks() []Track
	// OnTrackEnded subscribes to track-ended notifications for this
	// acquisition. Subscriptions die with the resource.
	OnTrackEnded(fn func(Track)) (unsubscribe func())
}
