package speech

import "fmt"

// ErrorCode is the fixed taxonomy of recognition failures.
type ErrorCode string

const (
	ErrNoSpeech             ErrorCode = "no-speech"
	ErrAudioCapture         ErrorCode = "audio-capture"
	ErrNotAllowed           ErrorCode = "not-allowed"
	ErrNetwork              ErrorCode = "network"
	ErrAborted              ErrorCode = "aborted"
	ErrLanguageNotSupported ErrorCode = "language-not-supported"
	ErrServiceNotAllowed    ErrorCode = "service-not-allowed"
	ErrUnknown              ErrorCode = "unknown"
)

// SpeechError is a classified recognition failure. A non-recoverable error
// tears the session down and blocks auto restart.
type SpeechError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
}

func (e SpeechError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var taxonomy = map[ErrorCode]SpeechError{
	ErrNoSpeech: {
		Code:        ErrNoSpeech,
		Message:     "no speech detected, try speaking louder or closer to the microphone",
		Recoverable: true,
	},
	ErrAudioCapture: {
		Code:        ErrAudioCapture,
		Message:     "could not capture audio, check that a microphone is connected",
		Recoverable: true,
	},
	ErrNotAllowed: {
		Code:        ErrNotAllowed,
		Message:     "microphone permission was denied",
		Recoverable: false,
	},
	ErrNetwork: {
		Code:        ErrNetwork,
		Message:     "network error while processing speech",
		Recoverable: true,
	},
	ErrAborted: {
		Code:        ErrAborted,
		Message:     "speech recognition was aborted",
		Recoverable: true,
	},
	ErrLanguageNotSupported: {
		Code:        ErrLanguageNotSupported,
		Message:     "recognition language is not supported by this engine",
		Recoverable: false,
	},
	ErrServiceNotAllowed: {
		Code:        ErrServiceNotAllowed,
		Message:     "speech recognition service is not available",
		Recoverable: false,
	},
}

// Classify maps a raw engine error code onto the taxonomy. Unknown codes are
// recoverable.
func Classify(code string) SpeechError {
	if e, ok := taxonomy[ErrorCode(code)]; ok {
		return e
	}
	if code == "" {
		code = "unspecified"
	}
	return SpeechError{
		Code:        ErrUnknown,
		Message:     fmt.Sprintf("unknown speech recognition error: %s", code),
		Recoverable: true,
	}
}
