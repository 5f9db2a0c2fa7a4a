package service

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmissionInFlight is returned when a form is asked to submit or
	// change while a previous submission has not finished.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	// ErrEmptyDescription is returned for blank or whitespace-only descriptions.
	ErrEmptyDescription = errors.New("description is required")
	// ErrNoSubmitter is returned when the submitter identity is unknown.
	ErrNoSubmitter = errors.New("submitter identity is required")
	// ErrEmptyAsset is returned when an upload has no content.
	ErrEmptyAsset = errors.New("file is empty")
	// ErrAssetTooLarge is returned when an upload exceeds the configured limit.
	ErrAssetTooLarge = errors.New("file is too large")
)

// ValidationError is a local input problem. No network call has been made.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid report: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UploadError means the object store rejected or could not be reached for an asset write.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	return fmt.Sprintf("upload of %s failed: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// StoreError means the table store rejected a write or read, or was unavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("report store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// FeedRefreshError is logged after a successful submission whose feed
// refresh failed. It never fails the submission.
type FeedRefreshError struct {
	Err error
}

func (e *FeedRefreshError) Error() string {
	return fmt.Sprintf("feed refresh failed: %v", e.Err)
}

func (e *FeedRefreshError) Unwrap() error { return e.Err }
