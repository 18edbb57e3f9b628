package storage

import "errors"

var (
	// ErrUploadNotFound is returned when an upload id does not exist.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrArchiveStopped is returned when an event is offered to an archive
	// writer that has already been shut down.
	ErrArchiveStopped = errors.New("event archive stopped")
)
