// Package validation checks user input for ideas, groups and submissions.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Field limits.
const (
	MaxNameLength        = 100
	MaxGroupNameLength   = 64
	MaxDescriptionLength = 10000
	MaxSubmissionText    = 200
	MaxURLLength         = 2048
)

var descriptionPolicy = bluemonday.UGCPolicy()

// SanitizeDescription strips unsafe markup from user supplied HTML.
func SanitizeDescription(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(descriptionPolicy.Sanitize(s))
}

// hasControl reports whether s contains control characters other than
// ordinary whitespace.
func hasControl(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
	}) >= 0
}

func validateName(field, value string, max int) *FieldError {
	name := strings.TrimSpace(value)
	switch {
	case name == "":
		return newFieldError(field, value, "must not be empty")
	case utf8.RuneCountInString(name) > max:
		return newFieldError(field, value, fmt.Sprintf("must be at most %d characters", max))
	case hasControl(name) || strings.ContainsAny(name, "\n\r\t"):
		return newFieldError(field, value, "must be a single line of printable text")
	}
	return nil
}

// ValidateIdea checks the fields of a submitted idea.
func ValidateIdea(name, description string) error {
	var errs FieldErrors
	if e := validateName("name", name, MaxNameLength); e != nil {
		errs = append(errs, e)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		errs.Add("description", "", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateGroupName checks a group name.
func ValidateGroupName(name string) error {
	if e := validateName("group_name", name, MaxGroupNameLength); e != nil {
		return e
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if msg := urlProblem(raw); msg != "" {
		return fmt.Errorf("URL %s", msg)
	}
	return nil
}

func urlProblem(raw string) string {
	if raw == "" {
		return "must not be empty"
	}
	if len(raw) > MaxURLLength {
		return fmt.Sprintf("must be at most %d characters", MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid address"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must start with http:// or https://"
	}
	if u.Host == "" {
		return "must name a host"
	}
	return ""
}

// ValidateSubmission checks the text and link of a group submission.
func ValidateSubmission(text, link string) error {
	var errs FieldErrors
	if e := validateName("submission_text", text, MaxSubmissionText); e != nil {
		errs = append(errs, e)
	}
	if msg := urlProblem(strings.TrimSpace(link)); msg != "" {
		errs.Add("submission_url", link, msg)
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateEmail checks an e-mail address used as a user identifier. Leading
// and trailing spaces are ignored, as they are when the address becomes a
// user ID.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	local, host, found := strings.Cut(email, "@")
	switch {
	case email == "":
		return newFieldError("email", email, "must not be empty")
	case !found || local == "" || host == "":
		return newFieldError("email", email, "must look like name@example.com")
	case strings.Contains(host, "@"):
		return newFieldError("email", email, "must contain a single @")
	case strings.IndexFunc(email, unicode.IsSpace) >= 0 || hasControl(email):
		return newFieldError("email", email, "must not contain spaces")
	}
	return nil
}

// EmailDomain returns the lower-cased domain of a valid address.
func EmailDomain(email string) string {
	_, host, _ := strings.Cut(strings.TrimSpace(email), "@")
	return strings.ToLower(host)
}
