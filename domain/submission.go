package domain

import (
	"io"
	"strings"
)

// Kind identifies which form a submission came from.
type Kind string

const (
	KindContact Kind = "contact"
	KindCareer  Kind = "career"
)

const (
	MaxResumeSize   = 5 * 1024 * 1024
	NotProvided     = "N/A"
	StatusNew       = "New"
	TimestampLayout = "2006-01-02 15:04:05"
)

var AllowedResumeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var (
	ContactHeaders = []string{"Timestamp", "Name", "Email", "Phone", "Company", "Message", "Status"}
	CareerHeaders  = []string{"Timestamp", "Name", "Email", "Phone", "Position Applied", "Cover Letter", "Resume Link", "Status"}
)

// Submission is either a *ContactSubmission or a *CareerSubmission.
type Submission interface {
	Kind() Kind
	Token() string
	Headers() []string
	Row(timestamp, resumeURL string) []string
	applicant() (name, email string)
	isSubmission()
}

type ContactSubmission struct {
	Name           string `validate:"required"`
	Email          string `validate:"required,email"`
	Phone          string
	Company        string
	Message        string `validate:"required"`
	TurnstileToken string
}

func (s *ContactSubmission) Kind() Kind        { return KindContact }
func (s *ContactSubmission) Token() string     { return s.TurnstileToken }
func (s *ContactSubmission) Headers() []string { return ContactHeaders }
func (s *ContactSubmission) isSubmission()     {}

func (s *ContactSubmission) applicant() (string, string) { return s.Name, s.Email }

func (s *ContactSubmission) Row(timestamp, _ string) []string {
	return []string{
		timestamp,
		s.Name,
		s.Email,
		orNotProvided(s.Phone),
		orNotProvided(s.Company),
		s.Message,
		StatusNew,
	}
}

type CareerSubmission struct {
	Name            string `validate:"required"`
	Email           string `validate:"required,email"`
	Phone           string
	PositionApplied string `validate:"required"`
	CoverLetter     string
	TurnstileToken  string
	Resume          *ResumeFile
}

func (s *CareerSubmission) Kind() Kind        { return KindCareer }
func (s *CareerSubmission) Token() string     { return s.TurnstileToken }
func (s *CareerSubmission) Headers() []string { return CareerHeaders }
func (s *CareerSubmission) isSubmission()     {}

func (s *CareerSubmission) applicant() (string, string) { return s.Name, s.Email }

func (s *CareerSubmission) Row(timestamp, resumeURL string) []string {
	return []string{
		timestamp,
		s.Name,
		s.Email,
		orNotProvided(s.Phone),
		s.PositionApplied,
		orNotProvided(s.CoverLetter),
		resumeURL,
		StatusNew,
	}
}

// ResumeFile is the uploaded résumé of a career submission. Content is read
// only by the publish step.
type ResumeFile struct {
	Filename  string
	MediaType string
	Size      int64
	Content   io.Reader
}

func orNotProvided(v string) string {
	if strings.TrimSpace(v) == "" {
		return NotProvided
	}
	return v
}
