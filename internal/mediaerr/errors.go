// Package mediaerr defines the error taxonomy shared by the optimizer stages.
//
// Every error here is fatal to the build. Cache copy failures are not
// errors at all; see cache.CopyOutcome.
package mediaerr

import (
	"errors"
	"fmt"
)

// UnknownResizePolicyError reports a resize-policy token that is not "", "none", "up" or "down".
type UnknownResizePolicyError struct {
	Token string
}

func (e *UnknownResizePolicyError) Error() string {
	return fmt.Sprintf("unknown resize policy %q (want \"\", \"up\" or \"down\")", e.Token)
}

// MissingRequiredAttributeError reports a malformed placeholder in page markup.
type MissingRequiredAttributeError struct {
	Page      string
	Element   string
	Attribute string
	Reason    string
}

func (e *MissingRequiredAttributeError) Error() string {
	msg := "placeholder"
	if e.Page != "" {
		msg += " in " + e.Page
	}
	switch {
	case e.Attribute != "":
		msg += fmt.Sprintf(": <%s> missing required attribute %q", e.Element, e.Attribute)
	default:
		msg += fmt.Sprintf(": missing required <%s> element", e.Element)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// DecodeError reports an unreadable or corrupt source image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a codec rejecting an image or its parameters.
type EncodeError struct {
	Path   string
	Format string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s as %s: %v", e.Path, e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ExternalToolError reports a failed or timed out external optimizer run.
type ExternalToolError struct {
	Tool     string
	Path     string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExternalToolError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s %s: timed out", e.Tool, e.Path)
	case e.ExitCode > 0:
		msg := fmt.Sprintf("%s %s: exit status %d", e.Tool, e.Path, e.ExitCode)
		if e.Stderr != "" {
			msg += ": " + e.Stderr
		}
		return msg
	default:
		return fmt.Sprintf("%s %s: %v", e.Tool, e.Path, e.Err)
	}
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Stage names the step of media processing that failed.
type Stage string

const (
	StageOpen       Stage = "open"
	StageDerivative Stage = "derivative"
	StageOriginal   Stage = "original"
)

// StageError attaches the offending asset and stage to a processing failure.
type StageError struct {
	Asset string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s stage: %v", e.Asset, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsTranscodeFailure reports whether err is a per-asset codec or tool failure.
func IsTranscodeFailure(err error) bool {
	var de *DecodeError
	var ee *EncodeError
	var te *ExternalToolError
	return errors.As(err, &de) || errors.As(err, &ee) || errors.As(err, &te)
}
