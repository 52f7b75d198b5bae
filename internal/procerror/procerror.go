package procerror

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"syscall"
)

// Kind is the closed set of processing failure categories. Every error
// surfaced to a user maps to exactly one kind.
type Kind int

const (
	// KindUnknown covers anything the boundary layers could not classify.
	KindUnknown Kind = iota
	// KindUnreadableImage means the source bytes are not a decodable image.
	KindUnreadableImage
	// KindOutOfMemory means decode or transform exceeded available memory.
	KindOutOfMemory
	// KindPermissionDenied means the output location is not writable.
	KindPermissionDenied
	// KindStorageExhausted means there is no space left to write outputs.
	KindStorageExhausted
	// KindInvalidConfiguration means a caller-supplied value violated a
	// precondition; the error carries its own message.
	KindInvalidConfiguration
)

// String returns the kind name used for debug detail suffixes.
func (k Kind) String() string {
	switch k {
	case KindUnreadableImage:
		return "UnreadableImage"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindStorageExhausted:
		return "StorageExhausted"
	case KindInvalidConfiguration:
		return "InvalidConfiguration"
	default:
		return "Unknown"
	}
}

// Error ties an underlying error to a Kind. It is created at the codec
// and storage boundaries so upper layers only ever deal with kinds.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	if e.msg != "" {
		return e.msg
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.err
}

// New wraps err with an explicit kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, err: err}
}

// Invalid creates an InvalidConfiguration error carrying its own
// user-facing message.
func Invalid(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidConfiguration, msg: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error into a Kind. Errors already tagged keep
// their kind; plain OS errors are matched on their cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, image.ErrFormat):
		return KindUnreadableImage
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		return KindStorageExhausted
	case errors.Is(err, syscall.ENOMEM):
		return KindOutOfMemory
	default:
		return KindUnknown
	}
}

// fixed user-facing messages, one per kind
var messages = map[Kind]string{
	KindUnreadableImage:  "The image could not be read. Make sure it is a valid JPG/PNG/WEBP file.",
	KindOutOfMemory:      "Not enough memory to process the image.",
	KindPermissionDenied: "Insufficient permissions on the server output folder.",
	KindStorageExhausted: "Not enough disk space to generate results. Free up space.",
	KindUnknown:          "An error occurred while processing the image.",
}

// Humanize maps an error to its fixed user-facing message. With debug
// enabled the kind name is appended so operators can trace the cause.
func Humanize(err error, debug bool) string {
	kind := KindOf(err)

	var message string
	if kind == KindInvalidConfiguration {
		var pe *Error
		if errors.As(err, &pe) && pe.msg != "" {
			message = pe.msg
		} else {
			message = err.Error()
		}
	} else {
		message = messages[kind]
	}

	if debug {
		message = fmt.Sprintf("%s (detail: %s)", message, kind)
	}
	return message
}
