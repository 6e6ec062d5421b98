package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var fieldLabels = map[string]string{
	"Name":            "name",
	"Email":           "email",
	"Message":         "message",
	"PositionApplied": "positionApplied",
}

// Validate trims the submission's text fields in place and checks required
// fields, the email grammar and, for career submissions, the résumé.
func Validate(sub Submission) error {
	switch s := sub.(type) {
	case *ContactSubmission:
		trimAll(&s.Name, &s.Email, &s.Phone, &s.Company, &s.Message)
		return validateStruct(s)
	case *CareerSubmission:
		trimAll(&s.Name, &s.Email, &s.Phone, &s.PositionApplied, &s.CoverLetter)
		if err := validateStruct(s); err != nil {
			return err
		}
		return validateResume(s.Resume)
	default:
		return Rejected(fmt.Sprintf("unsupported submission type %T", sub))
	}
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Rejected("Invalid form data provided")
	}
	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = strings.ToLower(fe.Field())
	}
	switch fe.Tag() {
	case "required":
		return Rejected(label + " is required")
	case "email":
		return Rejected("Invalid email address")
	default:
		return Rejected(label + " is invalid")
	}
}

func validateResume(r *ResumeFile) error {
	if r == nil {
		return Rejected("resume file is required")
	}
	if r.Size > MaxResumeSize {
		return Rejected("File size must be less than 5MB")
	}
	if !slices.Contains(AllowedResumeTypes, r.MediaType) {
		return Rejected("Only PDF and DOC files are allowed")
	}
	return nil
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
