package cml

import "errors"

// AuthError is a rejected checkauth step.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return "cml: auth error"
	}
	return "cml: auth error: " + e.Detail
}

// UploadError is a file or import rejection reported by the endpoint.
type UploadError struct {
	Filename string
	Detail   string
}

func (e *UploadError) Error() string {
	return "cml: upload " + e.Filename + " failed: " + e.Detail
}

// ErrImportTimeout marks an import poll that kept reporting progress past
// the attempt cap, surfaced distinctly from UploadError so callers can
// tell a stalled server-side job from a rejected one.
var ErrImportTimeout = errors.New("cml: import poll timed out")
