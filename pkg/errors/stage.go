package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// ErrorCode represents a classified per-item failure.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrParseError       ErrorCode = "parse_error"
	ErrDecodeError      ErrorCode = "decode_error"
	ErrEmptyAudio       ErrorCode = "empty_audio"
	ErrIOError          ErrorCode = "io_error"
	ErrProcessingError  ErrorCode = "processing_error"
)

// StageError is a structured error for a failure inside one stage
// (scan, analyze, compile) for one item.
type StageError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *StageError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Millisecond), e.Timeout.Truncate(time.Millisecond))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *StageError with the appropriate code.
// If the error doesn't match any known pattern, it returns a StageError with ErrProcessingError.
func ClassifyError(err error, stage string) *StageError {
	if err == nil {
		return nil
	}

	var existing *StageError
	if errors.As(err, &existing) {
		return existing
	}

	se := &StageError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		se.Code = ErrTimeout
		se.Message = "operation timed out"
		return se
	}

	if errors.Is(err, context.Canceled) {
		se.Code = ErrContextCancelled
		se.Message = "operation cancelled"
		return se
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		se.Code = ErrIOError
		se.Message = msg
		return se
	}

	if strings.Contains(lower, "zero frames") || strings.Contains(lower, "empty audio") {
		se.Code = ErrEmptyAudio
		se.Message = msg
		return se
	}

	if strings.Contains(lower, "filename") || strings.Contains(lower, "convention") || strings.Contains(lower, "timestamp") || strings.Contains(lower, "direction token") {
		se.Code = ErrParseError
		se.Message = msg
		return se
	}

	if strings.Contains(lower, "decod") || strings.Contains(lower, "unsupported") || strings.Contains(lower, "riff") || strings.Contains(lower, "wav") || strings.Contains(lower, "unexpected eof") {
		se.Code = ErrDecodeError
		se.Message = msg
		return se
	}

	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "no space left") || strings.Contains(lower, "read ") || strings.Contains(lower, "write ") {
		se.Code = ErrIOError
		se.Message = msg
		return se
	}

	se.Code = ErrProcessingError
	se.Message = msg
	return se
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code == ErrTimeout
	}
	return false
}

// CodeOf returns the classified code of err, or ErrProcessingError.
func CodeOf(err error) ErrorCode {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrProcessingError
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
func IsErrorRetryable(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		if info, ok := ErrorCodeRegistry[se.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
