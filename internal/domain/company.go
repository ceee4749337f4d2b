// Package domain contains the core entities of the company research tracker
// and the lifecycle invariants they maintain.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// CompanyStatus represents the lifecycle state of a company research job.
type CompanyStatus string

// Company research job statuses. A job is created pending, moves to
// processing once dispatched, and ends in exactly one of completed or failed.
const (
	CompanyStatusPending    CompanyStatus = "pending"
	CompanyStatusProcessing CompanyStatus = "processing"
	CompanyStatusCompleted  CompanyStatus = "completed"
	CompanyStatusFailed     CompanyStatus = "failed"
)

// Validation errors for Company fields and invariants.
var (
	ErrEmptyURL      = errors.New("company URL cannot be empty")
	ErrInvalidURL    = errors.New("company URL is not a valid URL")
	ErrInvalidStatus = errors.New("invalid company status")

	ErrUnexpectedRunID     = errors.New("pending company cannot carry a run ID")
	ErrMissingRunID        = errors.New("dispatched company must carry a run ID")
	ErrMissingResult       = errors.New("completed company must carry a result")
	ErrUnexpectedResult    = errors.New("only completed companies carry a result")
	ErrMissingErrorMessage = errors.New("failed company must carry an error message")
	ErrUnexpectedError     = errors.New("only failed companies carry an error message")
)

// Company is a tracked research job for a single company URL. One row per
// URL; the URL doubles as the natural identity of the job.
//
// Field presence follows the status: RunID is set exactly when the job has
// left pending, Result exactly when it completed, ErrorMessage exactly when
// it failed. The enrichment fields (FitScore, Pitch, EmployeeCount) are
// optional extras on completed jobs and may be absent even then.
type Company struct {
	ID            uuid.UUID       `json:"id"`
	URL           string          `json:"url"`
	RunID         *string         `json:"runId,omitempty"`
	Status        CompanyStatus   `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	FitScore      *string         `json:"fitScore,omitempty"`
	Pitch         *string         `json:"pitch,omitempty"`
	EmployeeCount *string         `json:"employeeCount,omitempty"`
	ErrorMessage  *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NewCompany creates a pending company for the given URL with a generated ID
// and creation timestamps. Returns an error if the URL is empty or not
// parseable as an absolute URL.
func NewCompany(rawURL string) (*Company, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	now := time.Now().UTC()
	return &Company{
		ID:        uuid.New(),
		URL:       rawURL,
		Status:    CompanyStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks that the company's fields are consistent with its status.
func (c *Company) Validate() error {
	if c.URL == "" {
		return ErrEmptyURL
	}

	switch c.Status {
	case CompanyStatusPending:
		if c.RunID != nil {
			return ErrUnexpectedRunID
		}
	case CompanyStatusProcessing, CompanyStatusCompleted, CompanyStatusFailed:
		if c.RunID == nil || *c.RunID == "" {
			return ErrMissingRunID
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}

	if c.Status == CompanyStatusCompleted {
		if len(c.Result) == 0 {
			return ErrMissingResult
		}
	} else if len(c.Result) > 0 {
		return ErrUnexpectedResult
	}

	if c.Status == CompanyStatusFailed {
		if c.ErrorMessage == nil || *c.ErrorMessage == "" {
			return ErrMissingErrorMessage
		}
	} else if c.ErrorMessage != nil {
		return ErrUnexpectedError
	}

	return nil
}

// IsTerminal reports whether the company has reached a final state.
func (c *Company) IsTerminal() bool {
	return c.Status == CompanyStatusCompleted || c.Status == CompanyStatusFailed
}
