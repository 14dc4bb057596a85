package capture

import (
	"errors"

	"voice-reminder-assistant/internal/service/recognizer"
)

// ErrorKind is the normalized capture error taxonomy.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorUnsupported      ErrorKind = "unsupported_platform"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorNoSpeech         ErrorKind = "no_speech"
	ErrorAudioCapture     ErrorKind = "audio_capture_failure"
	ErrorNetwork          ErrorKind = "network_failure"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorOther            ErrorKind = "other"
)

// Errors returned by StartListening.
var (
	ErrUnsupported      = errors.New("speech recognition unsupported")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrAlreadyListening = errors.New("capture session already listening")
	ErrClosed           = errors.New("capture session closed")
)

// NormalizeCode maps an engine error code into the taxonomy.
func NormalizeCode(code string) ErrorKind {
	switch code {
	case recognizer.CodeNoSpeech:
		return ErrorNoSpeech
	case recognizer.CodeAudioCapture:
		return ErrorAudioCapture
	case recognizer.CodeNotAllowed, "service-not-allowed", "permission-denied":
		return ErrorPermissionDenied
	case recognizer.CodeNetwork:
		return ErrorNetwork
	default:
		return ErrorOther
	}
}

// classifyStartError maps a failed recognizer.Start into the taxonomy.
func classifyStartError(err error) ErrorKind {
	switch {
	case errors.Is(err, recognizer.ErrUnsupported):
		return ErrorUnsupported
	case errors.Is(err, recognizer.ErrNotAllowed):
		return ErrorPermissionDenied
	case errors.Is(err, recognizer.ErrAudioCapture):
		return ErrorAudioCapture
	default:
		return ErrorNetwork
	}
}
