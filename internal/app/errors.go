package app

import "errors"

// Codes stables attachés aux échecs par épisode (logs, partition Failed, API).
const (
	CodeInvalidEpisode      = "invalid_episode"
	CodeManifestUnavailable = "manifest_unavailable"
	CodeNoMatchingRendition = "no_matching_rendition"
	CodeRemuxFailed         = "remux_failed"
	CodeIOError             = "io_error"
	CodePanic               = "panic"
)

// CodedError permet au pipeline de renvoyer un code d'erreur stable,
// repris dans RunResult.Failed.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

func coded(code, msg string, err error) error {
	return &CodedError{Code: code, Message: msg, Err: err}
}

// ErrorCode extrait le code d'une erreur, "" si elle n'en porte pas.
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
