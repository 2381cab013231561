// Package voxerr defines the error taxonomy shared by every subsystem so the
// overlay orchestrator can map a failure to a short HUD status string without
// inspecting subsystem-specific error types.
package voxerr

import "fmt"

// Kind categorizes an error by the subsystem and failure mode that
// produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfigInvalid
	KindPtySpawnFailed
	KindPtyIoError
	KindAudioDeviceUnavailable
	KindAudioStreamError
	KindVadError
	KindCaptureBackpressureExceeded
	KindSttModelLoadFailed
	KindSttTimeout
	KindSttRuntimeError
	KindNoSpeech
	KindFallbackUnavailable
	KindTranscriptInjectionFailed
)

func (k Kind) String() string {
	switch k {
	case KindConfigInvalid:
		return "config_invalid"
	case KindPtySpawnFailed:
		return "pty_spawn_failed"
	case KindPtyIoError:
		return "pty_io_error"
	case KindAudioDeviceUnavailable:
		return "audio_device_unavailable"
	case KindAudioStreamError:
		return "audio_stream_error"
	case KindVadError:
		return "vad_error"
	case KindCaptureBackpressureExceeded:
		return "capture_backpressure_exceeded"
	case KindSttModelLoadFailed:
		return "stt_model_load_failed"
	case KindSttTimeout:
		return "stt_timeout"
	case KindSttRuntimeError:
		return "stt_runtime_error"
	case KindNoSpeech:
		return "no_speech"
	case KindFallbackUnavailable:
		return "fallback_unavailable"
	case KindTranscriptInjectionFailed:
		return "transcript_injection_failed"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// category without string matching, and a short HUD-safe Status line.
type Error struct {
	Kind   Kind
	Status string // short, user-visible HUD status; never contains raw error text
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind wrapping cause, with status as the
// HUD-safe message.
func New(kind Kind, status string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Cause: cause}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	var ve *Error
	if e, ok := err.(*Error); ok {
		ve = e
	} else {
		return false
	}
	return ve.Kind == k
}

// StatusOf returns a HUD-safe status string for any error, falling back to a
// generic category label for errors that were not wrapped via this package.
func StatusOf(err error) string {
	if err == nil {
		return ""
	}
	if ve, ok := err.(*Error); ok && ve.Status != "" {
		return ve.Status
	}
	return "Unexpected error (see log)"
}
