package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business-level failures shared across layers.
var (
	// Validation
	ErrImageNotFound     = errors.New("local image not found")
	ErrPublicImageUpload = errors.New("public images cannot be pushed")
	ErrPermissionDenied  = errors.New("image belongs to another user")
	ErrAlreadyExists     = errors.New("image already exists in catalog")
	ErrLocalImageExists  = errors.New("image already exists locally")
	ErrNotFound          = errors.New("catalog entry not found")

	// Integrity
	ErrInvalidCoordinate = errors.New("invalid image coordinate")
	ErrIncompleteEntry   = errors.New("catalog entry lacks name or digest")

	// Infrastructure
	ErrNetwork     = errors.New("network failure")
	ErrPersistence = errors.New("persistence failure")
	ErrCache       = errors.New("cache failure")
	ErrCacheMiss   = errors.New("cache miss")
)

// Code is the taxonomy code surfaced in the result envelope.
type Code int

const (
	CodeSuccess                   Code = 0
	CodeImageNotFound             Code = 1001
	CodePublicImageUploadRejected Code = 1002
	CodePermissionDenied          Code = 1003
	CodeAlreadyExists             Code = 1004
	CodeLocalImageExists          Code = 1005
	CodeNotFound                  Code = 1006
	CodeNetworkError              Code = 2001
	CodePushError                 Code = 2002
	CodePullError                 Code = 2003
	CodeDeleteError               Code = 2004
	CodeIntegrityError            Code = 3001
	CodePersistenceError          Code = 4001
)

var codeMessages = map[Code]string{
	CodeSuccess:                   "success",
	CodeImageNotFound:             "local image not found",
	CodePublicImageUploadRejected: "public images cannot be pushed to the hub",
	CodePermissionDenied:          "permission denied",
	CodeAlreadyExists:             "image already exists on the hub",
	CodeLocalImageExists:          "image already exists locally",
	CodeNotFound:                  "hub image not found",
	CodeNetworkError:              "registry or daemon unreachable",
	CodePushError:                 "failed to push image",
	CodePullError:                 "failed to pull image",
	CodeDeleteError:               "failed to delete hub image",
	CodeIntegrityError:            "hub image record is incomplete or malformed",
	CodePersistenceError:          "catalog store failure",
}

// Message returns the stable human-readable text of a code.
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error is the only error type returned by catalog operations.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// NewError wraps err with a taxonomy code for operation op.
func NewError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code.Message())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code.Message(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the taxonomy code from err. Errors not produced by a catalog
// operation are classified by the sentinel they wrap.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrImageNotFound):
		return CodeImageNotFound
	case errors.Is(err, ErrPublicImageUpload):
		return CodePublicImageUploadRejected
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrLocalImageExists):
		return CodeLocalImageExists
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidCoordinate), errors.Is(err, ErrIncompleteEntry):
		return CodeIntegrityError
	case errors.Is(err, ErrNetwork):
		return CodeNetworkError
	default:
		return CodePersistenceError
	}
}
