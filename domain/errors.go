package domain

import "fmt"

type ErrorKind string

const (
	ErrValidation ErrorKind = "validation"
	ErrCaptcha    ErrorKind = "captcha"
	ErrDownstream ErrorKind = "downstream"
)

// SubmissionError is the only error type the pipeline returns. Detail is safe
// to show to the caller; Err is for logs.
type SubmissionError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ClientFault reports whether the caller caused the error.
func (e *SubmissionError) ClientFault() bool {
	return e.Kind == ErrValidation || e.Kind == ErrCaptcha
}

func Rejected(detail string) *SubmissionError {
	return &SubmissionError{Kind: ErrValidation, Detail: detail}
}

func captchaRejected() *SubmissionError {
	return &SubmissionError{Kind: ErrCaptcha, Detail: "Invalid captcha verification"}
}

func downstream(detail string, err error) *SubmissionError {
	return &SubmissionError{Kind: ErrDownstream, Detail: detail, Err: err}
}
